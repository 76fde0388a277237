package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixmoji/backend/internal/config"
	"github.com/pixmoji/backend/internal/imagegen"
	"github.com/pixmoji/backend/internal/models"
)

type stubGenerator struct {
	image []byte
	err   error
	calls int
}

func (g *stubGenerator) Generate(ctx context.Context, req imagegen.Request) ([]byte, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.image, nil
}

func testGenerationConfig(t *testing.T) *config.GenerationConfig {
	t.Helper()
	return &config.GenerationConfig{
		EmojiDir:       t.TempDir(),
		MaxUploadBytes: 10 * 1024 * 1024,
		CallTimeout:    5 * time.Second,
	}
}

func expectDeduct(mock sqlmock.Sqlmock, email string, balance, totalUsed int) {
	mock.ExpectBegin()
	expectExistingAccount(mock, email, balance, totalUsed)
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(email).
		WillReturnRows(accountRows(email, balance, totalUsed))
	mock.ExpectQuery("UPDATE accounts").
		WithArgs(sqlmock.AnyArg(), email).
		WillReturnRows(accountRows(email, balance-1, totalUsed+1))
	mock.ExpectExec("INSERT INTO token_transactions").
		WithArgs(email, models.TxKindUsage, -1, "Emoji generation", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func expectRefund(mock sqlmock.Sqlmock, email string, balance, totalUsed int) {
	mock.ExpectBegin()
	expectExistingAccount(mock, email, balance, totalUsed)
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(email).
		WillReturnRows(accountRows(email, balance, totalUsed))
	mock.ExpectQuery("UPDATE accounts").
		WithArgs(1, sqlmock.AnyArg(), email).
		WillReturnRows(accountRows(email, balance+1, totalUsed))
	mock.ExpectExec("INSERT INTO token_transactions").
		WithArgs(email, models.TxKindRefund, 1, "Refund - Generation failed", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func TestGenerationService_Generate(t *testing.T) {
	email := "user@example.com"

	t.Run("empty balance fails before the external call", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		generator := &stubGenerator{image: []byte("png-bytes")}
		service := NewGenerationService(db, NewLedgerService(db), generator, testGenerationConfig(t))

		mock.ExpectBegin()
		expectExistingAccount(mock, email, 0, 25)
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(email).
			WillReturnRows(accountRows(email, 0, 25))
		mock.ExpectCommit()

		_, err = service.Generate(context.Background(), GenerateParams{
			UserEmail:   email,
			Description: "a happy corgi",
		})
		assert.ErrorIs(t, err, ErrInsufficientTokens)
		assert.Equal(t, 0, generator.calls, "generator must not be called without a token")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed generation refunds the token", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		modelErr := errors.New("model overloaded")
		generator := &stubGenerator{err: modelErr}
		service := NewGenerationService(db, NewLedgerService(db), generator, testGenerationConfig(t))

		expectDeduct(mock, email, 5, 20)
		expectRefund(mock, email, 4, 21)

		_, err = service.Generate(context.Background(), GenerateParams{
			UserEmail:   email,
			Description: "a happy corgi",
		})

		var extErr *ExternalServiceError
		require.ErrorAs(t, err, &extErr)
		assert.ErrorIs(t, err, modelErr)
		assert.Equal(t, 1, generator.calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refund failure does not mask the generation error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		modelErr := errors.New("model overloaded")
		generator := &stubGenerator{err: modelErr}
		service := NewGenerationService(db, NewLedgerService(db), generator, testGenerationConfig(t))

		expectDeduct(mock, email, 5, 20)
		mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

		_, err = service.Generate(context.Background(), GenerateParams{
			UserEmail:   email,
			Description: "a happy corgi",
		})
		assert.ErrorIs(t, err, modelErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("successful generation persists the image", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		image := []byte("fake-png-bytes")
		generator := &stubGenerator{image: image}
		cfg := testGenerationConfig(t)
		service := NewGenerationService(db, NewLedgerService(db), generator, cfg)

		expectDeduct(mock, email, 5, 20)
		mock.ExpectQuery("INSERT INTO emojis").
			WithArgs(email, sqlmock.AnyArg(), "", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))

		result, err := service.Generate(context.Background(), GenerateParams{
			UserEmail:   email,
			Description: "a happy corgi",
			Emojify:     true,
		})
		require.NoError(t, err)

		assert.Equal(t, 4, result.TokensRemaining)
		assert.True(t, strings.HasPrefix(result.Emoji.Filename, "emoji_"))
		assert.Equal(t, "/static/emojis/"+result.Emoji.Filename, result.GeneratedImage)
		assert.Empty(t, result.OriginalImage)
		assert.Contains(t, result.Prompt, "a happy corgi")

		written, err := os.ReadFile(filepath.Join(cfg.EmojiDir, result.Emoji.Filename))
		require.NoError(t, err)
		assert.Equal(t, image, written)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("source image is stored alongside the result", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		generator := &stubGenerator{image: []byte("generated")}
		cfg := testGenerationConfig(t)
		service := NewGenerationService(db, NewLedgerService(db), generator, cfg)

		expectDeduct(mock, email, 5, 20)
		mock.ExpectQuery("INSERT INTO emojis").
			WithArgs(email, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(2, time.Now()))

		source := []byte("source-jpeg-bytes")
		result, err := service.Generate(context.Background(), GenerateParams{
			UserEmail:        email,
			Image:            source,
			ImageMime:        "image/jpeg",
			OriginalFilename: "selfie.jpg",
		})
		require.NoError(t, err)

		require.NotEmpty(t, result.Emoji.OriginalFilename)
		assert.True(t, strings.HasSuffix(result.Emoji.OriginalFilename, ".jpg"))
		assert.Equal(t, "/static/emojis/"+result.Emoji.OriginalFilename, result.OriginalImage)

		written, err := os.ReadFile(filepath.Join(cfg.EmojiDir, result.Emoji.OriginalFilename))
		require.NoError(t, err)
		assert.Equal(t, source, written)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGenerationService_ListEmojis(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewGenerationService(db, NewLedgerService(db), &stubGenerator{}, testGenerationConfig(t))

	email := "user@example.com"
	now := time.Now()
	mock.ExpectQuery("FROM emojis").
		WithArgs(email).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_email", "filename", "original_filename", "prompt", "metadata", "created_at"}).
			AddRow(2, email, "emoji_b.png", nil, "prompt b", []byte(`{"emojify":true}`), now).
			AddRow(1, email, "emoji_a.png", "source_a.jpg", "prompt a", []byte(`{}`), now.Add(-time.Hour)))

	emojis, err := service.ListEmojis(context.Background(), email)
	require.NoError(t, err)
	require.Len(t, emojis, 2)
	assert.Equal(t, "emoji_b.png", emojis[0].Filename)
	assert.Empty(t, emojis[0].OriginalFilename)
	assert.Equal(t, "source_a.jpg", emojis[1].OriginalFilename)
	assert.Equal(t, true, emojis[0].Metadata["emojify"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
