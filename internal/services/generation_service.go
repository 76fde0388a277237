package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pixmoji/backend/internal/config"
	"github.com/pixmoji/backend/internal/imagegen"
	"github.com/pixmoji/backend/internal/models"
)

// GenerationService sequences the deduct, generate, settle protocol. A
// request spends exactly one token before the external call; a failed call
// refunds that token and the original failure still reaches the caller.
// The external model is invoked at most once per request.
type GenerationService struct {
	db        *sql.DB
	ledger    *LedgerService
	generator imagegen.Generator
	cfg       *config.GenerationConfig
}

// GenerateParams carries one validated generation request.
type GenerateParams struct {
	UserEmail        string
	Description      string
	Image            []byte
	ImageMime        string
	OriginalFilename string
	RemoveBackground bool
	Emojify          bool
}

// GenerateResult is the outcome of a committed generation.
type GenerateResult struct {
	Emoji           models.Emoji
	Prompt          string
	TokensRemaining int
	OriginalImage   string
	GeneratedImage  string
}

func NewGenerationService(db *sql.DB, ledger *LedgerService, generator imagegen.Generator, cfg *config.GenerationConfig) *GenerationService {
	return &GenerationService{
		db:        db,
		ledger:    ledger,
		generator: generator,
		cfg:       cfg,
	}
}

// Generate runs the full protocol. ErrInsufficientTokens is returned before
// any external call when the balance is empty.
func (s *GenerationService) Generate(ctx context.Context, params GenerateParams) (*GenerateResult, error) {
	ok, account, err := s.ledger.Deduct(ctx, params.UserEmail)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientTokens
	}

	genReq := imagegen.Request{
		Image:            params.Image,
		MimeType:         params.ImageMime,
		Description:      params.Description,
		RemoveBackground: params.RemoveBackground,
		Emojify:          params.Emojify,
	}
	prompt := imagegen.BuildPrompt(genReq)

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	generated, err := s.generator.Generate(callCtx, genReq)
	if err != nil {
		s.refund(params.UserEmail)
		return nil, &ExternalServiceError{Op: "image generation", Err: err}
	}

	result, err := s.persist(ctx, params, prompt, generated)
	if err != nil {
		s.refund(params.UserEmail)
		return nil, err
	}

	result.TokensRemaining = account.Balance
	return result, nil
}

// refund is a best-effort compensation. It runs on a fresh context so a
// cancelled request cannot strand the balance, and a refund failure is
// logged rather than surfaced so it does not mask the original error.
func (s *GenerationService) refund(email string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.ledger.Credit(ctx, email, 1, models.TxKindRefund, "Refund - Generation failed", ""); err != nil {
		log.Printf("[GENERATION] Refund failed for %s, ledger inconsistent: %v", email, err)
		return
	}
	log.Printf("[GENERATION] Refunded 1 token to %s", email)
}

// persist writes the image files and the emoji row.
func (s *GenerationService) persist(ctx context.Context, params GenerateParams, prompt string, generated []byte) (*GenerateResult, error) {
	if err := os.MkdirAll(s.cfg.EmojiDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to prepare emoji directory: %w", err)
	}

	filename := fmt.Sprintf("emoji_%s.png", uuid.NewString())
	if err := os.WriteFile(filepath.Join(s.cfg.EmojiDir, filename), generated, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write generated image: %w", err)
	}

	originalFilename := ""
	if len(params.Image) > 0 {
		originalFilename = fmt.Sprintf("source_%s%s", uuid.NewString(), extForMime(params.ImageMime))
		if err := os.WriteFile(filepath.Join(s.cfg.EmojiDir, originalFilename), params.Image, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write source image: %w", err)
		}
	}

	emoji := models.Emoji{
		UserEmail:        params.UserEmail,
		Filename:         filename,
		OriginalFilename: originalFilename,
		Prompt:           prompt,
		Metadata: models.Metadata{
			"removeBackground": params.RemoveBackground,
			"emojify":          params.Emojify,
			"hasSourceImage":   len(params.Image) > 0,
			"uploadName":       params.OriginalFilename,
		},
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO emojis (user_email, filename, original_filename, prompt, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		emoji.UserEmail, emoji.Filename, emoji.OriginalFilename, emoji.Prompt,
		emoji.Metadata, time.Now()).Scan(&emoji.ID, &emoji.CreatedAt)
	if err != nil {
		return nil, wrapStorageError(err)
	}

	result := &GenerateResult{
		Emoji:          emoji,
		Prompt:         prompt,
		GeneratedImage: emojiURL(filename),
	}
	if originalFilename != "" {
		result.OriginalImage = emojiURL(originalFilename)
	}
	return result, nil
}

// ListEmojis returns a user's generated emojis, newest first.
func (s *GenerationService) ListEmojis(ctx context.Context, email string) ([]models.Emoji, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_email, filename, original_filename, prompt, metadata, created_at
		FROM emojis
		WHERE user_email = $1
		ORDER BY created_at DESC, id DESC`, email)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	defer rows.Close()

	emojis := []models.Emoji{}
	for rows.Next() {
		var e models.Emoji
		var original sql.NullString
		if err := rows.Scan(&e.ID, &e.UserEmail, &e.Filename, &original,
			&e.Prompt, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, wrapStorageError(err)
		}
		if original.Valid {
			e.OriginalFilename = original.String
		}
		emojis = append(emojis, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorageError(err)
	}

	return emojis, nil
}

func emojiURL(filename string) string {
	return "/static/emojis/" + filename
}

// EmojiURL exposes the public path for a stored emoji file.
func EmojiURL(filename string) string {
	return emojiURL(filename)
}

func extForMime(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
