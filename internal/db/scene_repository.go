package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/worldstream/internal/cache"
	"github.com/udisondev/worldstream/internal/parcel"
)

// SceneRecord is one indexed deployment.
type SceneRecord struct {
	ID        string
	Name      string
	Timestamp int64
	// Parcels holds the parcels the deployment still owns in the index.
	Parcels []parcel.Parcel
	SeenAt  time.Time
}

// SceneRepository maps parcels to the newest deployment seen for them.
type SceneRepository struct {
	pool *pgxpool.Pool
}

// NewSceneRepository creates a new scene repository.
func NewSceneRepository(pool *pgxpool.Pool) *SceneRepository {
	return &SceneRepository{pool: pool}
}

// Upsert stores rec and points its parcels at it unless they already
// belong to a newer deployment.
func (r *SceneRepository) Upsert(ctx context.Context, rec SceneRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning scene upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO scenes (id, name, timestamp, seen_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   timestamp = EXCLUDED.timestamp,
		   seen_at = EXCLUDED.seen_at`,
		rec.ID, rec.Name, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("upserting scene %s: %w", rec.ID, err)
	}

	batch := &pgx.Batch{}
	for _, p := range rec.Parcels {
		batch.Queue(
			`INSERT INTO scene_parcels (x, y, scene_id)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (x, y) DO UPDATE SET scene_id = EXCLUDED.scene_id
			 WHERE (SELECT s.timestamp FROM scenes s WHERE s.id = scene_parcels.scene_id) <= $4`,
			p.X, p.Y, rec.ID, rec.Timestamp,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("indexing parcels of scene %s: %w", rec.ID, err)
	}

	// Deployments left without parcels are superseded, including rec when
	// every parcel already belongs to something newer.
	_, err = tx.Exec(ctx,
		`DELETE FROM scenes s
		 WHERE NOT EXISTS (SELECT 1 FROM scene_parcels p WHERE p.scene_id = s.id)`,
	)
	if err != nil {
		return fmt.Errorf("pruning superseded scenes: %w", err)
	}

	return tx.Commit(ctx)
}

// Record implements the streamer's recorder hook.
func (r *SceneRepository) Record(ctx context.Context, e cache.Entry, name string) error {
	return r.Upsert(ctx, SceneRecord{
		ID:        e.ID,
		Name:      name,
		Timestamp: e.Timestamp,
		Parcels:   e.Parcels,
	})
}

// ByParcel returns the deployment indexed for p.
func (r *SceneRepository) ByParcel(ctx context.Context, p parcel.Parcel) (SceneRecord, error) {
	var rec SceneRecord
	err := r.pool.QueryRow(ctx,
		`SELECT s.id, s.name, s.timestamp, s.seen_at
		 FROM scene_parcels p JOIN scenes s ON s.id = p.scene_id
		 WHERE p.x = $1 AND p.y = $2`,
		p.X, p.Y,
	).Scan(&rec.ID, &rec.Name, &rec.Timestamp, &rec.SeenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SceneRecord{}, fmt.Errorf("%w: parcel %s", ErrNotFound, p)
		}
		return SceneRecord{}, fmt.Errorf("querying scene at %s: %w", p, err)
	}

	rec.Parcels, err = r.parcels(ctx, rec.ID)
	if err != nil {
		return SceneRecord{}, err
	}
	return rec, nil
}

func (r *SceneRepository) parcels(ctx context.Context, id string) ([]parcel.Parcel, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT x, y FROM scene_parcels WHERE scene_id = $1 ORDER BY x, y`, id)
	if err != nil {
		return nil, fmt.Errorf("loading parcels of scene %s: %w", id, err)
	}
	defer rows.Close()

	var out []parcel.Parcel
	for rows.Next() {
		var p parcel.Parcel
		if err := rows.Scan(&p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("scanning parcel row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating parcel rows: %w", err)
	}
	return out, nil
}

// List returns every indexed deployment ordered by id.
func (r *SceneRepository) List(ctx context.Context) ([]SceneRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.name, s.timestamp, s.seen_at, p.x, p.y
		 FROM scenes s LEFT JOIN scene_parcels p ON p.scene_id = s.id
		 ORDER BY s.id, p.x, p.y`)
	if err != nil {
		return nil, fmt.Errorf("listing scenes: %w", err)
	}
	defer rows.Close()

	var out []SceneRecord
	for rows.Next() {
		var (
			rec  SceneRecord
			x, y *int16
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Timestamp, &rec.SeenAt, &x, &y); err != nil {
			return nil, fmt.Errorf("scanning scene row: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].ID != rec.ID {
			out = append(out, rec)
		}
		if x != nil && y != nil {
			last := &out[len(out)-1]
			last.Parcels = append(last.Parcels, parcel.New(*x, *y))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scene rows: %w", err)
	}
	return out, nil
}
