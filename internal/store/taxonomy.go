package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"newsroom/internal/core"
)

// ReplaceTaxonomy writes an article's tags, entities, topics, and event
// dates in one transaction, alongside which the caller flips the article
// status. Tag/entity/topic link rows are replaced wholesale so repeated
// summarization converges on the latest model output.
func (s *Store) ReplaceTaxonomy(ctx context.Context, articleID int64, tags, entities []string, topics []core.TopicScore, events []core.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: taxonomy begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.replaceTags(ctx, tx, articleID, tags); err != nil {
		return err
	}
	if err := s.replaceEntities(ctx, tx, articleID, entities); err != nil {
		return err
	}
	if err := s.replaceTopics(ctx, tx, articleID, topics); err != nil {
		return err
	}

	if len(events) > 0 {
		if err := s.replaceEvents(ctx, tx, articleID, events); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE articles SET event_dates = $1 WHERE id = $2`,
			marshalOrNil(events), articleID); err != nil {
			return fmt.Errorf("store: event_dates update failed: %w", err)
		}
	}

	// Keep the denormalized tags column in step with the link table.
	if len(tags) > 0 {
		if _, err := tx.Exec(ctx, `UPDATE articles SET tags = $1 WHERE id = $2`,
			marshalOrNil(core.MergeTags(nil, tags)), articleID); err != nil {
			return fmt.Errorf("store: tags column update failed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: taxonomy commit failed: %w", err)
	}
	return nil
}

func (s *Store) replaceTags(ctx context.Context, tx pgx.Tx, articleID int64, tags []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM article_tags WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("store: tag delete failed: %w", err)
	}
	for _, tag := range core.MergeTags(nil, tags) {
		if _, err := tx.Exec(ctx, `
            INSERT INTO article_tags (article_id, tag) VALUES ($1, $2)
            ON CONFLICT DO NOTHING`, articleID, tag); err != nil {
			return fmt.Errorf("store: tag insert failed: %w", err)
		}
	}
	return nil
}

func (s *Store) replaceEntities(ctx context.Context, tx pgx.Tx, articleID int64, entities []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM article_entities WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("store: entity unlink failed: %w", err)
	}
	for _, name := range core.MergeTags(nil, entities) {
		var entityID int64
		err := tx.QueryRow(ctx, `
            INSERT INTO entities (name) VALUES ($1)
            ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
            RETURNING id`, name).Scan(&entityID)
		if err != nil {
			return fmt.Errorf("store: entity upsert failed: %w", err)
		}
		if _, err := tx.Exec(ctx, `
            INSERT INTO article_entities (article_id, entity_id) VALUES ($1, $2)
            ON CONFLICT DO NOTHING`, articleID, entityID); err != nil {
			return fmt.Errorf("store: entity link failed: %w", err)
		}
	}
	return nil
}

func (s *Store) replaceTopics(ctx context.Context, tx pgx.Tx, articleID int64, topics []core.TopicScore) error {
	if _, err := tx.Exec(ctx, `DELETE FROM article_topics WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("store: topic unlink failed: %w", err)
	}
	seen := map[string]bool{}
	for _, topic := range topics {
		if topic.Label == "" || seen[topic.Label] {
			continue
		}
		seen[topic.Label] = true

		var topicID int64
		err := tx.QueryRow(ctx, `
            INSERT INTO topics (label) VALUES ($1)
            ON CONFLICT (label) DO UPDATE SET label = EXCLUDED.label
            RETURNING id`, topic.Label).Scan(&topicID)
		if err != nil {
			return fmt.Errorf("store: topic upsert failed: %w", err)
		}
		if _, err := tx.Exec(ctx, `
            INSERT INTO article_topics (article_id, topic_id, score) VALUES ($1, $2, $3)
            ON CONFLICT (article_id, topic_id) DO UPDATE SET score = EXCLUDED.score`,
			articleID, topicID, topic.Score); err != nil {
			return fmt.Errorf("store: topic link failed: %w", err)
		}
	}
	return nil
}
