package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registryTestSession(partnerID string) *Session {
	return newSession(nil, RoleCaller, partnerID, false)
}

// TestRegistrySingleCall — canlı bir session varken ikinci kayıt, farklı
// partner için bile reddedilir.
func TestRegistrySingleCall(t *testing.T) {
	r := NewRegistry()

	s1 := registryTestSession("user-b")
	require.NoError(t, r.Register(s1))

	err := r.Register(registryTestSession("user-c"))
	assert.ErrorIs(t, err, ErrAlreadyInCall)

	err = r.Register(registryTestSession("user-b"))
	assert.ErrorIs(t, err, ErrAlreadyInCall, "same pair must also be rejected")
}

// TestRegistryLookups — partner ve call ID anahtarlarıyla erişim.
func TestRegistryLookups(t *testing.T) {
	r := NewRegistry()

	s := registryTestSession("user-b")
	require.NoError(t, r.Register(s))

	assert.Same(t, s, r.ByPartner("user-b"))
	assert.Nil(t, r.ByPartner("user-x"))
	assert.Same(t, s, r.Active())
	assert.Nil(t, r.ByCall(7), "call id not bound yet")

	s.callID = 7
	r.BindCall(s, 7)
	assert.Same(t, s, r.ByCall(7))
}

// TestRegistryRemove — silme sonrası her iki anahtar da boşalır ve yeni
// kayıt kabul edilir. Tekrarlanan Remove no-op'tur.
func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()

	s := registryTestSession("user-b")
	require.NoError(t, r.Register(s))
	s.callID = 7
	r.BindCall(s, 7)

	r.Remove(s)
	assert.Nil(t, r.ByPartner("user-b"))
	assert.Nil(t, r.ByCall(7))
	assert.Nil(t, r.Active())

	r.Remove(s) // idempotent

	require.NoError(t, r.Register(registryTestSession("user-b")))
}

// TestRegistryBindCallAfterRemove — sökülmüş bir session'a geç gelen
// BindCall, registry'ye sarkan kayıt BIRAKMAZ.
func TestRegistryBindCallAfterRemove(t *testing.T) {
	r := NewRegistry()

	s := registryTestSession("user-b")
	require.NoError(t, r.Register(s))
	r.Remove(s)

	r.BindCall(s, 7)
	assert.Nil(t, r.ByCall(7), "bind after remove must be ignored")
}
