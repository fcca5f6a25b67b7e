package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/weiawesome/wes-io-live/internal/config"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

// cassandraSchema is applied by EnsureSchema. messages_by_room serves the
// room timeline; messages_by_id serves direct lookups and the delete LWT.
var cassandraSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages_by_room (
		chat_room_id text,
		message_id text,
		user_id text,
		content text,
		type text,
		is_deleted boolean,
		deleted_by text,
		created_at timestamp,
		PRIMARY KEY ((chat_room_id), message_id)
	) WITH CLUSTERING ORDER BY (message_id DESC)`,
	`CREATE TABLE IF NOT EXISTS messages_by_id (
		message_id text PRIMARY KEY,
		chat_room_id text,
		user_id text,
		content text,
		type text,
		is_deleted boolean,
		deleted_by text,
		created_at timestamp
	)`,
}

const messageColumns = `message_id, chat_room_id, user_id, content, type, is_deleted, deleted_by, created_at`

// CassandraMessageRepository implements MessageRepository on Cassandra.
// Message IDs are ULIDs, so clustering by message_id is time order.
type CassandraMessageRepository struct {
	session *gocql.Session
}

// NewCassandraSession connects to the cluster described by cfg.
func NewCassandraSession(cfg config.CassandraConfig) (*gocql.Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = parseConsistency(cfg.Consistency)
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.Timeout = cfg.Timeout

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}
	return session, nil
}

// NewCassandraMessageRepository creates a message repository on an open session.
func NewCassandraMessageRepository(session *gocql.Session) *CassandraMessageRepository {
	return &CassandraMessageRepository{session: session}
}

var _ MessageRepository = (*CassandraMessageRepository)(nil)

// EnsureSchema creates the message tables when missing.
func (r *CassandraMessageRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range cassandraSchema {
		if err := r.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to apply cassandra schema: %w", err)
		}
	}
	return nil
}

// Create writes the message to both tables in a logged batch.
func (r *CassandraMessageRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, table := range []string{"messages_by_room", "messages_by_id"} {
		batch.Query(
			`INSERT INTO `+table+` (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ChatRoomID, msg.UserID, msg.Content, string(msg.Type), msg.IsDeleted, deref(msg.DeletedBy), msg.CreatedAt,
		)
	}
	if err := r.session.ExecuteBatch(batch); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, msg.ChatRoomID).Msg("failed to save message to cassandra")
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetByID retrieves a message with its stored content.
func (r *CassandraMessageRepository) GetByID(ctx context.Context, id string) (*domain.ChatMessage, error) {
	iter := r.session.Query(
		`SELECT `+messageColumns+` FROM messages_by_id WHERE message_id = ?`, id,
	).WithContext(ctx).Iter()

	messages, err := scanMessages(iter)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, ErrMessageNotFound
	}
	return &messages[0], nil
}

// ListRecent returns the newest limit messages, newest first.
func (r *CassandraMessageRepository) ListRecent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	iter := r.session.Query(
		`SELECT `+messageColumns+` FROM messages_by_room WHERE chat_room_id = ? ORDER BY message_id DESC LIMIT ?`,
		roomID, limit,
	).WithContext(ctx).Iter()
	return scanMessages(iter)
}

// ListAfter returns up to limit messages after afterID, oldest first.
func (r *CassandraMessageRepository) ListAfter(ctx context.Context, roomID, afterID string, limit int) ([]domain.ChatMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM messages_by_room WHERE chat_room_id = ? ORDER BY message_id ASC LIMIT ?`
	args := []interface{}{roomID, limit}
	if afterID != "" {
		query = `SELECT ` + messageColumns + ` FROM messages_by_room WHERE chat_room_id = ? AND message_id > ? ORDER BY message_id ASC LIMIT ?`
		args = []interface{}{roomID, afterID, limit}
	}
	return scanMessages(r.session.Query(query, args...).WithContext(ctx).Iter())
}

// SoftDelete tombstones the message. The lightweight transaction on
// messages_by_id decides the single winner of concurrent deletes. The
// messages_by_room copy is written on every call with the winner's id, so a
// retry after a failed mirror write completes the tombstone.
func (r *CassandraMessageRepository) SoftDelete(ctx context.Context, id, deletedBy string) (bool, error) {
	l := log.Ctx(ctx)

	msg, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	applied := false
	winner := deref(msg.DeletedBy)
	if !msg.IsDeleted {
		var current bool
		applied, err = r.session.Query(
			`UPDATE messages_by_id SET is_deleted = true, deleted_by = ? WHERE message_id = ? IF is_deleted = false`,
			deletedBy, id,
		).WithContext(ctx).ScanCAS(&current)
		if err != nil {
			l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to delete message in cassandra")
			return false, fmt.Errorf("failed to delete message: %w", err)
		}
		if applied {
			winner = deletedBy
		} else {
			// Lost the race; mirror whoever won.
			latest, err := r.GetByID(ctx, id)
			if err != nil {
				return false, err
			}
			winner = deref(latest.DeletedBy)
		}
	}

	if err := r.session.Query(
		`UPDATE messages_by_room SET is_deleted = true, deleted_by = ? WHERE chat_room_id = ? AND message_id = ?`,
		winner, msg.ChatRoomID, id,
	).WithContext(ctx).Exec(); err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to mirror message delete")
		return applied, fmt.Errorf("failed to mirror message delete: %w", err)
	}
	return applied, nil
}

// Close closes the underlying session.
func (r *CassandraMessageRepository) Close() error {
	r.session.Close()
	return nil
}

func scanMessages(iter *gocql.Iter) ([]domain.ChatMessage, error) {
	var (
		messages  []domain.ChatMessage
		msg       domain.ChatMessage
		msgType   string
		deletedBy string
	)
	for iter.Scan(&msg.ID, &msg.ChatRoomID, &msg.UserID, &msg.Content, &msgType, &msg.IsDeleted, &deletedBy, &msg.CreatedAt) {
		msg.Type = domain.MessageType(msgType)
		if deletedBy != "" {
			by := deletedBy
			msg.DeletedBy = &by
		}
		messages = append(messages, msg)
		msg = domain.ChatMessage{}
		deletedBy = ""
	}
	if err := iter.Close(); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parseConsistency converts a string consistency level to gocql.Consistency.
func parseConsistency(s string) gocql.Consistency {
	switch strings.ToUpper(s) {
	case "ANY":
		return gocql.Any
	case "ONE":
		return gocql.One
	case "TWO":
		return gocql.Two
	case "THREE":
		return gocql.Three
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "EACH_QUORUM":
		return gocql.EachQuorum
	case "LOCAL_ONE":
		return gocql.LocalOne
	default:
		return gocql.LocalQuorum
	}
}
