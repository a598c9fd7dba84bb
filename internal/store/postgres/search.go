package postgres

import (
	"context"
	"fmt"

	"computeruse-backend/internal/models"
	"computeruse-backend/internal/store"
)

// -- name: SearchByText :many
// Legacy rows may hold a bare JSON string; it is treated as one text block.
// Text blocks are joined with a single space before matching.
const searchByTextQuery = `
	WITH bodies AS (
		SELECT m.id, m.session_id, m.created_at,
		       string_agg(b.elem->>'text', ' ' ORDER BY b.ord) AS body
		FROM messages m
		CROSS JOIN LATERAL jsonb_array_elements(
			CASE WHEN jsonb_typeof(m.content) = 'array' THEN m.content
			     ELSE jsonb_build_array(jsonb_build_object('type', 'text', 'text', m.content #>> '{}'))
			END
		) WITH ORDINALITY AS b(elem, ord)
		WHERE m.message_type = 'text'
		  AND b.elem->>'type' = 'text'
		GROUP BY m.id
	),
	latest AS (
		SELECT DISTINCT ON (session_id) id, session_id, created_at, body
		FROM bodies
		WHERE position(lower($1) in lower(body)) > 0
		ORDER BY session_id, id DESC
	)
	SELECT s.code, s.display_name, s.created_at, l.id, l.created_at, left(l.body, $3)
	FROM latest l
	JOIN sessions s ON s.id = l.session_id
	ORDER BY l.id DESC
	LIMIT $2`

// SearchByText returns at most one hit per session: its newest text message
// containing query, case-insensitively. Image messages never match.
func (s *PostgresStore) SearchByText(ctx context.Context, query string, limit int) ([]models.SearchHit, error) {
	if query == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, searchByTextQuery, query, limit, store.SnippetMaxLen)
	if err != nil {
		return nil, fmt.Errorf("error searching messages: %w", err)
	}
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		var h models.SearchHit
		if err := rows.Scan(&h.SessionCode, &h.DisplayName, &h.SessionCreatedAt, &h.MessageID, &h.MessageCreatedAt, &h.Snippet); err != nil {
			return nil, fmt.Errorf("error scanning search row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search rows: %w", err)
	}
	return hits, nil
}
