// vole-peer, komut satırından arama yapıp kabul edebilen signaling peer'ı.
//
// Kullanım:
//
//	vole-peer -server http://localhost:8080 -username ayse -password secret123
//
// Bağlandıktan sonra stdin komutları:
//
//	call <user-id> [video]   — arama başlat
//	accept                   — gelen aramayı kabul et
//	reject                   — gelen aramayı reddet
//	hangup                   — aktif aramayı kapat
//	status                   — session durumunu yazdır
//	quit                     — çık
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/selimgur/vole/call"
	"github.com/selimgur/vole/call/pionmedia"
	"github.com/selimgur/vole/call/wsclient"
)

func main() {
	log.SetFlags(log.Ltime)

	serverURL := flag.String("server", "http://localhost:8080", "vole server adresi")
	username := flag.String("username", "", "kullanıcı adı")
	password := flag.String("password", "", "parola")
	ringTimeout := flag.Duration("ring-timeout", 45*time.Second, "gelen arama cevapsız kalma süresi")
	dialTimeout := flag.Duration("dial-timeout", 30*time.Second, "start_call server yanıt bekleme süresi")
	stunList := flag.String("stun", "stun:stun.l.google.com:19302", "STUN server listesi (virgülle ayrılmış)")
	flag.Parse()

	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: vole-peer -server <url> -username <name> -password <pass>")
		os.Exit(1)
	}

	token, userID, err := login(*serverURL, *username, *password)
	if err != nil {
		log.Fatalf("[peer] login failed: %v", err)
	}
	log.Printf("[peer] logged in as %s (%s)", *username, userID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	transport, err := wsclient.Dial(ctx, *serverURL, token)
	cancel()
	if err != nil {
		log.Fatalf("[peer] connect failed: %v", err)
	}
	defer transport.Close()

	factory := pionmedia.NewFactory(splitList(*stunList))

	mgr := call.NewManager(transport, factory, call.Config{
		RingTimeout: *ringTimeout,
		DialTimeout: *dialTimeout,
	})
	mgr.SetLocalUser(userID)

	mgr.OnIncomingCall(func(_ *call.Session, inc call.IncomingCall) {
		kind := "voice"
		if inc.Video {
			kind = "video"
		}
		name := inc.FromUsername
		if inc.FromDisplayName != nil && *inc.FromDisplayName != "" {
			name = *inc.FromDisplayName
		}
		fmt.Printf("\n*** incoming %s call from %s (call %d) — type 'accept' or 'reject'\n> ", kind, name, inc.CallID)
	})

	mgr.OnStateChange(func(s *call.Session, state call.State, reason call.EndReason) {
		if state == call.StateEnded {
			fmt.Printf("\n*** call with %s ended (%s, duration %s)\n> ", s.PartnerID(), reason, s.Duration().Round(time.Second))
			return
		}
		fmt.Printf("\n*** call with %s: %s\n> ", s.PartnerID(), state)
	})

	mgr.OnRemoteTrack(func(s *call.Session, kind, id string) {
		fmt.Printf("\n*** receiving %s from %s\n> ", kind, s.PartnerID())
	})

	mgr.OnChatMessage(func(msg call.ChatMessage) {
		var body struct {
			Content string `json:"content"`
			Author  struct {
				Username string `json:"username"`
			} `json:"author"`
		}
		if err := json.Unmarshal(msg.Raw, &body); err != nil {
			return
		}
		fmt.Printf("\n[%s] %s\n> ", body.Author.Username, body.Content)
	})

	go mgr.Run()

	runCommandLoop(mgr)
}

// runCommandLoop, stdin komutlarını okur ve Manager'a iletir.
func runCommandLoop(mgr *call.Manager) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Print("> ")
			continue
		}

		switch fields[0] {
		case "call":
			if len(fields) < 2 {
				fmt.Println("usage: call <user-id> [video]")
				break
			}
			video := len(fields) > 2 && fields[2] == "video"
			if _, err := mgr.StartCall(fields[1], video); err != nil {
				fmt.Printf("cannot call: %v\n", err)
			}

		case "accept":
			if s := mgr.ActiveSession(); s != nil {
				if err := s.Accept(); err != nil {
					fmt.Printf("cannot accept: %v\n", err)
				}
			} else {
				fmt.Println("no incoming call")
			}

		case "reject":
			if s := mgr.ActiveSession(); s != nil {
				if err := s.Reject(); err != nil {
					fmt.Printf("cannot reject: %v\n", err)
				}
			} else {
				fmt.Println("no incoming call")
			}

		case "hangup":
			if s := mgr.ActiveSession(); s != nil {
				s.HangUp()
			} else {
				fmt.Println("not in a call")
			}

		case "status":
			if s := mgr.ActiveSession(); s != nil {
				fmt.Printf("call %d with %s: %s (%s, video=%v)\n",
					s.CallID(), s.PartnerID(), s.State(), s.Role(), s.Video())
			} else {
				fmt.Println("idle")
			}

		case "quit", "exit":
			if s := mgr.ActiveSession(); s != nil {
				s.HangUp()
			}
			return

		default:
			fmt.Println("commands: call <user-id> [video] | accept | reject | hangup | status | quit")
		}

		fmt.Print("> ")
	}
}

// login, REST API üzerinden giriş yapar ve access token + user ID döner.
func login(serverURL, username, password string) (token, userID string, err error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", "", err
	}

	resp, err := http.Post(serverURL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	var reply struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Data    struct {
			AccessToken string `json:"access_token"`
			User        struct {
				ID string `json:"id"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", "", fmt.Errorf("malformed login response: %w", err)
	}
	if !reply.Success {
		return "", "", fmt.Errorf("%s", reply.Error)
	}

	return reply.Data.AccessToken, reply.Data.User.ID, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
