package room

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"sync"
	"time"

	"auction-oracle/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type Role string

const (
	RoleModerator   Role = "moderator"
	RoleParticipant Role = "participant"
)

const (
	audience  = "jitsi"
	issuer    = "chat"
	notBefore = 10 * time.Second
)

var ErrInvalidCredential = errors.New("invalid room credential")

type Room struct {
	RoomID    string
	BaseURL   string
	ExpiresAt time.Time
	Duration  int
}

type Subject struct {
	ID    string
	Name  string
	Email string
}

type Configuration struct {
	Domain        string
	AppID         string
	KeyID         string
	PrivateKeyPEM []byte
}

// JitsiProvisioner creates JaaS rooms and signs RS256 room credentials.
// Rooms need no server side call: a room exists once a valid credential
// for it is presented.
type JitsiProvisioner struct {
	domain string
	appID  string
	keyID  string
	key    *rsa.PrivateKey
	now    func() time.Time

	mu        sync.Mutex
	lastStamp int64
}

func NewJitsiProvisioner(configuration Configuration) (*JitsiProvisioner, error) {
	if configuration.Domain == "" || configuration.AppID == "" {
		return nil, errors.New("jitsi domain and app id are required")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(configuration.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse jitsi private key: %w", err)
	}

	return &JitsiProvisioner{
		domain: configuration.Domain,
		appID:  configuration.AppID,
		keyID:  configuration.KeyID,
		key:    key,
		now:    time.Now,
	}, nil
}

// CreateRoom names the room "<name>-<unix millis>". The stamp is bumped when
// two calls land in the same millisecond so ids never repeat in-process.
func (p *JitsiProvisioner) CreateRoom(ctx context.Context, name string, durationMinutes int) (*Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("invalid meeting duration %d", durationMinutes)
	}

	now := p.now()

	p.mu.Lock()
	stamp := now.UnixMilli()
	if stamp <= p.lastStamp {
		stamp = p.lastStamp + 1
	}
	p.lastStamp = stamp
	p.mu.Unlock()

	roomID := name + "-" + strconv.FormatInt(stamp, 10)
	room := &Room{
		RoomID:    roomID,
		BaseURL:   fmt.Sprintf("https://%s/%s/%s", p.domain, p.appID, roomID),
		ExpiresAt: now.Add(time.Duration(durationMinutes) * time.Minute),
		Duration:  durationMinutes,
	}

	logger.Debug("create room... done", zap.String("room id", roomID), zap.Time("expires at", room.ExpiresAt))
	return room, nil
}

func (p *JitsiProvisioner) IssueCredential(ctx context.Context, roomID string, subject Subject, role Role, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if role != RoleModerator && role != RoleParticipant {
		return "", fmt.Errorf("unknown role %q", role)
	}

	now := p.now()
	claims := Claims{
		Room: roomID,
		Context: ClaimsContext{
			User: ClaimsUser{
				ID:        subject.ID,
				Name:      subject.Name,
				Email:     subject.Email,
				Moderator: strconv.FormatBool(role == RoleModerator),
			},
			Features: ClaimsFeatures{
				Livestreaming: "false",
				Recording:     strconv.FormatBool(role == RoleModerator),
				Transcription: "false",
				OutboundCall:  "false",
			},
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   p.appID,
			Audience:  jwt.ClaimStrings{audience},
			NotBefore: jwt.NewNumericDate(now.Add(-notBefore)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = p.keyID

	signed, err := token.SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("sign room credential: %w", err)
	}
	return signed, nil
}

// VerifyCredential checks signature, audience and validity window the way
// the room host does.
func (p *JitsiProvisioner) VerifyCredential(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return &p.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}

func JoinURL(baseURL, token string) string {
	return baseURL + "?jwt=" + url.QueryEscape(token)
}

// CredentialTTL covers the meeting rounded up to whole hours plus one hour
// of slack.
func CredentialTTL(durationMinutes int) time.Duration {
	hours := math.Ceil(float64(durationMinutes)/60) + 1
	return time.Duration(hours) * time.Hour
}
