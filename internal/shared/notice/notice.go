// Package notice carries short-lived UI payloads (banners, re-opened modals)
// across a POST-redirect-GET in single-use signed cookies.
package notice

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	NoticeCookie = "ui_notice"
	FlashCookie  = "basic_info_flash"
	ErrorCookie  = "ui_error"

	// MaxAge seconds a payload survives unread
	MaxAge = 45
)

// Notice success banner
type Notice struct {
	Message   string `json:"message"`
	AutoClose *bool  `json:"autoClose,omitempty"`
}

// Flash re-opens a form modal with the submitted values and an error
type Flash struct {
	Type      string                 `json:"type"`
	Values    map[string]interface{} `json:"values"`
	Error     string                 `json:"error"`
	ModalMode string                 `json:"modalMode"`
}

// UIError error banner
type UIError struct {
	Message string `json:"message"`
}

// Store signs cookie values with HMAC-SHA256 when a secret is configured
type Store struct {
	secret []byte
	secure bool
}

func NewStore(secret string, secure bool) *Store {
	return &Store{secret: []byte(secret), secure: secure}
}

func (s *Store) SetNotice(c *gin.Context, n Notice) {
	s.write(c, NoticeCookie, "/", n)
}

// ReadNotice nil when absent, malformed or already read
func (s *Store) ReadNotice(c *gin.Context) *Notice {
	var n Notice
	if !s.read(c, NoticeCookie, "/", &n) {
		return nil
	}
	return &n
}

// SetFlash path is the route base path of the form's list view
func (s *Store) SetFlash(c *gin.Context, path string, f Flash) {
	s.write(c, FlashCookie, path, f)
}

func (s *Store) ReadFlash(c *gin.Context, path string) *Flash {
	var f Flash
	if !s.read(c, FlashCookie, path, &f) {
		return nil
	}
	return &f
}

func (s *Store) SetError(c *gin.Context, message string) {
	s.write(c, ErrorCookie, "/", UIError{Message: message})
}

func (s *Store) ReadError(c *gin.Context) *UIError {
	var e UIError
	if !s.read(c, ErrorCookie, "/", &e) {
		return nil
	}
	return &e
}

func (s *Store) write(c *gin.Context, name, path string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, s.sign(string(raw)), MaxAge, path, "", s.secure, true)
}

// read is destructive: the cookie is expired on the response and later
// reads within the same request see nothing.
func (s *Store) read(c *gin.Context, name, path string, dst interface{}) bool {
	consumedKey := "notice.consumed." + name
	if c.GetBool(consumedKey) {
		return false
	}
	value, err := c.Cookie(name)
	if err != nil {
		return false
	}
	c.Set(consumedKey, true)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, "", -1, path, "", s.secure, true)

	payload, ok := s.verify(value)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(payload), dst) == nil
}

func (s *Store) sign(payload string) string {
	if len(s.secret) == 0 {
		return payload
	}
	return payload + "." + s.mac(payload)
}

func (s *Store) verify(value string) (string, bool) {
	if len(s.secret) == 0 {
		return value, true
	}
	i := strings.LastIndex(value, ".")
	if i < 0 {
		return "", false
	}
	payload, sig := value[:i], value[i+1:]
	if !hmac.Equal([]byte(sig), []byte(s.mac(payload))) {
		return "", false
	}
	return payload, true
}

func (s *Store) mac(payload string) string {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(payload))
	return hex.EncodeToString(m.Sum(nil))
}
