package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/guidely/guidely-api/internal/crypto"
	"github.com/guidely/guidely-api/internal/models"
)

// sealedPrefix marks encrypted message content so rows written before
// encryption was enabled still read back as-is.
const sealedPrefix = "enc:v1:"

// SQLiteSessionRepository implements SessionRepository for SQLite/libsql.
// With an Encryptor configured, message content and image payloads are
// encrypted at rest; session titles stay plaintext so listings work without
// per-row decryption.
type SQLiteSessionRepository struct {
	db  *sql.DB
	enc *crypto.Encryptor
}

// NewSQLiteSessionRepository creates a new SQLite session repository. A nil
// encryptor stores content in plaintext.
func NewSQLiteSessionRepository(db *sql.DB, enc *crypto.Encryptor) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db, enc: enc}
}

// Create stores a new session. Missing IDs and timestamps are filled in.
func (r *SQLiteSessionRepository) Create(ctx context.Context, session *models.ChatSession) error {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = ulid.Make().String()
	}
	if session.Title == "" {
		session.Title = models.DefaultSessionTitle
	}
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, user_email, title, model, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID,
		session.UserEmail,
		session.Title,
		string(session.Model),
		boolToInt(session.Archived),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	return err
}

// GetByID returns the session with its messages. Sessions owned by other
// users are reported as ErrNotFound.
func (r *SQLiteSessionRepository) GetByID(ctx context.Context, id, userEmail string) (*models.ChatSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_email, title, model, archived, created_at, updated_at
		FROM chat_sessions
		WHERE id = ? AND user_email = ?
	`, id, userEmail)

	session, err := scanSession(row)
	if err != nil {
		return nil, err
	}

	messages, err := r.getMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Messages = messages

	return session, nil
}

// List returns the user's sessions without messages, most recently updated
// first.
func (r *SQLiteSessionRepository) List(ctx context.Context, userEmail string, includeArchived bool, limit, offset int) ([]*models.ChatSession, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_email, title, model, archived, created_at, updated_at
		FROM chat_sessions
		WHERE user_email = ?`
	if !includeArchived {
		query += ` AND archived = 0`
	}
	query += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, userEmail, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.ChatSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// AppendMessage adds a message to a session the user owns and bumps the
// session's updated_at so it sorts to the top of listings.
func (r *SQLiteSessionRepository) AppendMessage(ctx context.Context, userEmail string, msg *models.ChatMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := sessionOwned(ctx, tx, msg.SessionID, userEmail); err != nil {
		return err
	}

	now := time.Now().UTC()
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	msg.CreatedAt = now

	var imagesJSON sql.NullString
	if len(msg.Images) > 0 {
		data, err := json.Marshal(msg.Images)
		if err != nil {
			return err
		}
		sealed, err := r.seal(string(data))
		if err != nil {
			return err
		}
		imagesJSON = sql.NullString{String: sealed, Valid: true}
	}

	content, err := r.seal(msg.Content)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, model, images_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.SessionID,
		string(msg.Role),
		content,
		string(msg.Model),
		imagesJSON,
		now.Format(time.RFC3339),
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339), msg.SessionID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateTitle sets the title only while the session still carries the
// placeholder, so a second titling attempt is a no-op rather than an error.
func (r *SQLiteSessionRepository) UpdateTitle(ctx context.Context, id, userEmail, title string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chat_sessions SET title = ?, updated_at = ?
		WHERE id = ? AND user_email = ? AND title = ?
	`, title, time.Now().UTC().Format(time.RFC3339), id, userEmail, models.DefaultSessionTitle)
	if err != nil {
		return err
	}

	// Distinguish "already titled" (fine) from "not yours / missing".
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists int
		err := r.db.QueryRowContext(ctx,
			`SELECT 1 FROM chat_sessions WHERE id = ? AND user_email = ?`, id, userEmail,
		).Scan(&exists)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// UpdateModel switches the session's active model.
func (r *SQLiteSessionRepository) UpdateModel(ctx context.Context, id, userEmail string, bucket models.ModelBucket) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chat_sessions SET model = ?, updated_at = ?
		WHERE id = ? AND user_email = ?
	`, string(bucket), time.Now().UTC().Format(time.RFC3339), id, userEmail)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetArchived toggles the archived flag.
func (r *SQLiteSessionRepository) SetArchived(ctx context.Context, id, userEmail string, archived bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chat_sessions SET archived = ?, updated_at = ?
		WHERE id = ? AND user_email = ?
	`, boolToInt(archived), time.Now().UTC().Format(time.RFC3339), id, userEmail)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes the session; its messages go with it via the FK cascade.
func (r *SQLiteSessionRepository) Delete(ctx context.Context, id, userEmail string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE id = ? AND user_email = ?`, id, userEmail,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *SQLiteSessionRepository) getMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, model, images_json, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		var role, model, content, createdAt string
		var imagesJSON sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &content, &model, &imagesJSON, &createdAt); err != nil {
			return nil, err
		}
		msg.Content, err = r.open(content)
		if err != nil {
			return nil, err
		}
		msg.Role = models.MessageRole(role)
		msg.Model = models.ModelBucket(model)
		if imagesJSON.Valid && imagesJSON.String != "" {
			raw, err := r.open(imagesJSON.String)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal([]byte(raw), &msg.Images); err != nil {
				return nil, err
			}
		}
		msg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// seal encrypts content for storage when an encryptor is configured.
func (r *SQLiteSessionRepository) seal(plaintext string) (string, error) {
	if r.enc == nil || plaintext == "" {
		return plaintext, nil
	}
	sealed, err := r.enc.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	return sealedPrefix + sealed, nil
}

// open decrypts stored content. Rows without the sealed prefix predate
// encryption and are returned unchanged.
func (r *SQLiteSessionRepository) open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if r.enc == nil {
		return "", crypto.ErrInvalidCipher
	}
	return r.enc.Decrypt(strings.TrimPrefix(stored, sealedPrefix))
}

// sessionOwned verifies the session exists and belongs to the user.
func sessionOwned(ctx context.Context, tx *sql.Tx, id, userEmail string) error {
	var exists int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM chat_sessions WHERE id = ? AND user_email = ?`, id, userEmail,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.ChatSession, error) {
	var s models.ChatSession
	var model, createdAt, updatedAt string
	var archived int

	err := row.Scan(&s.ID, &s.UserEmail, &s.Title, &model, &archived, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.Model = models.ModelBucket(model)
	s.Archived = archived != 0
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &s, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
