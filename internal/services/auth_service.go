package services

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"

	"github.com/pixmoji/backend/internal/config"
	"github.com/pixmoji/backend/internal/mailer"
)

// AuthService implements passwordless email login: a short-lived one-time
// code is mailed to the user, and a successful verification issues a JWT.
// Codes live in Redis with an explicit TTL and are consumed on first use.
type AuthService struct {
	ledger    *LedgerService
	redis     *redis.Client
	mailer    mailer.Sender
	validator *validator.Validate
	cfg       *config.AuthConfig
}

// SendCodeRequest represents the send-code request payload
type SendCodeRequest struct {
	Email string `json:"email" validate:"required,email" example:"user@example.com"`
}

// VerifyCodeRequest represents the verify-code request payload
type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email" example:"user@example.com"`
	Code  string `json:"code" validate:"required,min=4,max=10" example:"482913"`
}

func NewAuthService(ledger *LedgerService, redisClient *redis.Client, sender mailer.Sender, cfg *config.AuthConfig) *AuthService {
	return &AuthService{
		ledger:    ledger,
		redis:     redisClient,
		mailer:    sender,
		validator: validator.New(),
		cfg:       cfg,
	}
}

// SendCode issues a login code for an email address
// @Summary Send login code
// @Description Generate a one-time login code and email it to the user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SendCodeRequest true "Send code request"
// @Success 200 {object} map[string]interface{} "Code sent"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 429 {object} ErrorResponse "Too many codes requested"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /api/send-code [post]
func (s *AuthService) SendCode(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req SendCodeRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if s.redis == nil {
		log.Printf("[AUTH] Send-code rejected, code store unavailable")
		SendErrorResponse(w, "Login is temporarily unavailable", http.StatusInternalServerError, nil)
		return
	}

	ctx := r.Context()
	if err := s.checkRateLimit(ctx, req.Email); err != nil {
		log.Printf("[AUTH] Rate limit hit for %s", req.Email)
		SendErrorResponse(w, "Too many codes requested, try again later", http.StatusTooManyRequests, nil)
		return
	}

	code := s.generateCode()
	key := loginCodeKey(req.Email)
	if err := s.redis.Set(ctx, key, code, s.cfg.CodeTTL).Err(); err != nil {
		log.Printf("[AUTH] Failed to store login code for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to generate code", http.StatusInternalServerError, nil)
		return
	}
	s.incrementRateLimit(ctx, req.Email)

	if err := s.deliverCode(ctx, req.Email, code); err != nil {
		log.Printf("[AUTH] Failed to email code to %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to send code", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login code issued for %s, expires in %s", req.Email, s.cfg.CodeTTL)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "Verification code sent",
	})
}

// VerifyCode checks a login code and issues a session token
// @Summary Verify login code
// @Description Verify a one-time login code; the code is single use
// @Tags auth
// @Accept json
// @Produce json
// @Param request body VerifyCodeRequest true "Verify code request"
// @Success 200 {object} map[string]interface{} "Code verified"
// @Failure 400 {object} ErrorResponse "Missing, expired or invalid code"
// @Router /api/verify-code [post]
func (s *AuthService) VerifyCode(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req VerifyCodeRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if s.redis == nil {
		SendErrorResponse(w, "Login is temporarily unavailable", http.StatusInternalServerError, nil)
		return
	}

	ctx := r.Context()
	// GetDel consumes the code atomically so a replayed submission fails.
	stored, err := s.redis.GetDel(ctx, loginCodeKey(req.Email)).Result()
	if err == redis.Nil {
		log.Printf("[AUTH] No code on file for %s", req.Email)
		SendErrorResponse(w, "Code expired or not found", http.StatusBadRequest, nil)
		return
	}
	if err != nil {
		log.Printf("[AUTH] Code lookup failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to verify code", http.StatusInternalServerError, nil)
		return
	}

	if stored != req.Code {
		log.Printf("[AUTH] Invalid code submitted for %s", req.Email)
		SendErrorResponse(w, "Invalid verification code", http.StatusBadRequest, nil)
		return
	}

	token, err := generateJWT(req.Email)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login verified for %s", req.Email)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "Code verified",
		"email":   req.Email,
		"token":   token,
	})
}

// Logout blacklists the presented session token
// @Summary Logout
// @Description Invalidate the current session token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /api/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// Me returns the authenticated user's account
// @Summary Current account
// @Description Get the authenticated user's token account
// @Tags auth
// @Produce json
// @Success 200 {object} models.Account "Account details"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /api/me [get]
func (s *AuthService) Me(w http.ResponseWriter, r *http.Request) {
	email, ok := r.Context().Value("userEmail").(string)
	if !ok || email == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account, _, err := s.ledger.GetAccount(r.Context(), email)
	if err != nil {
		log.Printf("[AUTH] Failed to load account for %s: %v", email, err)
		SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

func (s *AuthService) deliverCode(ctx context.Context, email, code string) error {
	if s.mailer == nil {
		// No email collaborator configured; log the code so local
		// development can still complete the flow.
		log.Printf("[AUTH] Login code for %s: %s", email, code)
		return nil
	}

	subject := "Your login code"
	html := fmt.Sprintf(
		"<p>Your verification code is <strong>%s</strong>.</p><p>It expires in %d minutes.</p>",
		code, int(s.cfg.CodeTTL.Minutes()))
	return s.mailer.Send(ctx, email, subject, html)
}

func (s *AuthService) generateCode() string {
	const charset = "0123456789"
	code := make([]byte, s.cfg.CodeLength)
	charsetLen := big.NewInt(int64(len(charset)))

	for i := range code {
		n, _ := cryptorand.Int(cryptorand.Reader, charsetLen)
		code[i] = charset[n.Int64()]
	}

	return string(code)
}

func (s *AuthService) checkRateLimit(ctx context.Context, email string) error {
	key := rateLimitKey(email)
	count, err := s.redis.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		return err
	}

	if count >= s.cfg.MaxCodesPerEmail {
		return errors.New("rate limit exceeded")
	}

	return nil
}

func (s *AuthService) incrementRateLimit(ctx context.Context, email string) {
	key := rateLimitKey(email)
	pipe := s.redis.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.cfg.RateLimitWindow)
	pipe.Exec(ctx)
}

func loginCodeKey(email string) string {
	return fmt.Sprintf("login_code:%s", email)
}

func rateLimitKey(email string) string {
	return fmt.Sprintf("login_code:ratelimit:%s", email)
}

func generateJWT(email string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": email,
		"exp":   time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}
