package services

import (
	"context"
	"fmt"

	"github.com/selimgur/vole/models"
	"github.com/selimgur/vole/pkg"
	"github.com/selimgur/vole/repository"
	"github.com/selimgur/vole/ws"
)

// UserService, kullanıcı listeleme ve profil iş mantığı interface'i.
type UserService interface {
	// ListUsers, tüm kullanıcıları döner (sohbet başlatma ekranı için).
	ListUsers(ctx context.Context) ([]models.User, error)

	// GetUser, tek bir kullanıcıyı döner.
	GetUser(ctx context.Context, id string) (*models.User, error)

	// UpdateProfile, kullanıcının kendi profilini günceller.
	// Pointer field'lar nil ise o alan değiştirilmez (partial update).
	UpdateProfile(ctx context.Context, userID string, req *models.UpdateUserRequest) (*models.User, error)
}

type userService struct {
	userRepo repository.UserRepository
	hub      ws.EventPublisher
}

// NewUserService, constructor.
func NewUserService(userRepo repository.UserRepository, hub ws.EventPublisher) UserService {
	return &userService{
		userRepo: userRepo,
		hub:      hub,
	}
}

// ListUsers, tüm kullanıcıları döner.
// PasswordHash json:"-" ile zaten serialize edilmez ama yine de temizlenir —
// defense in depth değil, alışkanlık: bu struct'lar log'a da düşebilir.
func (s *userService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.userRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	for i := range users {
		users[i].PasswordHash = ""
	}

	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// GetUser, tek bir kullanıcıyı döner.
func (s *userService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

// UpdateProfile, kullanıcının kendi profilini günceller ve güncel halini
// herkese broadcast eder (sohbet listelerindeki isim anında değişsin).
func (s *userService) UpdateProfile(ctx context.Context, userID string, req *models.UpdateUserRequest) (*models.User, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		user.DisplayName = req.DisplayName
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	user.PasswordHash = ""

	s.hub.BroadcastToAll(ws.Event{
		Op:   ws.OpUserUpdate,
		Data: user,
	})

	return user, nil
}
