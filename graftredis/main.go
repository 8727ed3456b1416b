// Package graftredis generates graft accessor sets backed by Redis. Rows are
// stored as JSON values under "table:id" keys, generated ids come from an
// INCR sequence per table, foreign-key lookups go through secondary-index
// sets, and many-to-many links live in sets keyed by the owning id.
package graftredis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/graftdb/graft"
)

// =====================================
// Provider Implementation
// =====================================

// Provider implements graft.Provider using Redis.
type Provider struct {
	client *redis.Client
	config graft.Config
}

// Factory implements graft.ProviderFactory.
type Factory struct{}

// Create creates a new Redis provider instance.
func (f *Factory) Create(config graft.Config) (graft.Provider, error) {
	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       0,
	}
	if config.Database != "" {
		if db, err := strconv.Atoi(config.Database); err == nil {
			opts.DB = db
		}
	}
	if config.MaxOpenConns > 0 {
		opts.PoolSize = config.MaxOpenConns
	}
	if config.MaxIdleConns > 0 {
		opts.MinIdleConns = config.MaxIdleConns
	}
	if options, ok := config.Options["redis"]; ok {
		if redisOpts, ok := options.(map[string]interface{}); ok {
			if dialTimeout, ok := redisOpts["dial_timeout"].(time.Duration); ok {
				opts.DialTimeout = dialTimeout
			}
			if readTimeout, ok := redisOpts["read_timeout"].(time.Duration); ok {
				opts.ReadTimeout = readTimeout
			}
			if writeTimeout, ok := redisOpts["write_timeout"].(time.Duration); ok {
				opts.WriteTimeout = writeTimeout
			}
		}
	}

	provider := &Provider{client: redis.NewClient(opts), config: config}
	if err := provider.Health(); err != nil {
		return nil, graft.Error{
			Type:    graft.ErrorTypeConnection,
			Message: "failed to connect to Redis",
			Cause:   err,
		}
	}
	return provider, nil
}

// SupportedDrivers returns the list of supported database drivers.
func (f *Factory) SupportedDrivers() []string {
	return []string{"redis"}
}

// Client exposes the underlying Redis client.
func (p *Provider) Client() *redis.Client {
	return p.client
}

// Health checks the Redis connection.
func (p *Provider) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Ping(ctx).Err(); err != nil {
		return graft.Error{Type: graft.ErrorTypeConnection, Message: "Redis ping failed", Cause: err}
	}
	return nil
}

// Close closes the Redis client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Info returns provider metadata.
func (p *Provider) Info() graft.ProviderInfo {
	return graft.ProviderInfo{
		Name:         "redis",
		Version:      "1.0.0",
		DatabaseType: graft.DatabaseTypeKV,
		Features: []graft.Feature{
			graft.FeatureGeneratedKeys,
			graft.FeatureSecondaryIndexes,
		},
	}
}

// =====================================
// Accessor Generation
// =====================================

// Accessors generates an accessor set without secondary indexes; relations
// cannot query such a table by foreign key. Use IndexedAccessors for tables
// that are the target of a to-many relation.
func (p *Provider) Accessors(table, idColumn string) graft.Accessors {
	return p.IndexedAccessors(table, idColumn)
}

// IndexedAccessors generates an accessor set maintaining a secondary-index
// set per named column, which ForeignKeyQuery then resolves through. Every
// foreign-key column of the table's to-many relations must be listed.
func (p *Provider) IndexedAccessors(table, idColumn string, indexColumns ...string) graft.Accessors {
	return graft.Accessors{
		Read: func(ctx context.Context, id any) (graft.Row, error) {
			return p.readRow(ctx, table, id)
		},
		Insert: func(ctx context.Context, row graft.Row) (graft.Row, error) {
			out := row.Clone()
			if id, ok := out[idColumn]; !ok || id == nil {
				id, err := p.client.Incr(ctx, table+":_seq").Result()
				if err != nil {
					return nil, err
				}
				out[idColumn] = id
			}
			if err := p.writeRow(ctx, table, out[idColumn], out); err != nil {
				return nil, err
			}
			for _, column := range indexColumns {
				if value, ok := out[column]; ok && value != nil {
					if err := p.client.SAdd(ctx, indexKey(table, column, value), keyString(out[idColumn])).Err(); err != nil {
						return nil, err
					}
				}
			}
			return out, nil
		},
		Update: func(ctx context.Context, row graft.Row) (graft.Row, error) {
			id, ok := row[idColumn]
			if !ok || id == nil {
				return nil, graft.Error{
					Type:    graft.ErrorTypePrecondition,
					Message: fmt.Sprintf("update on %q without %q field", table, idColumn),
				}
			}
			existing, err := p.readRow(ctx, table, id)
			if err != nil {
				return nil, err
			}
			if existing == nil {
				existing = graft.Row{}
			}
			merged := existing.Clone()
			for field, value := range row {
				if value == nil {
					delete(merged, field)
					continue
				}
				merged[field] = value
			}
			merged[idColumn] = id
			if err := p.writeRow(ctx, table, id, merged); err != nil {
				return nil, err
			}
			// Move secondary-index memberships that the update changed.
			for _, column := range indexColumns {
				if _, touched := row[column]; !touched || column == idColumn {
					continue
				}
				oldValue, hadOld := existing[column]
				newValue := row[column]
				if hadOld && oldValue != nil {
					if err := p.client.SRem(ctx, indexKey(table, column, oldValue), keyString(id)).Err(); err != nil {
						return nil, err
					}
				}
				if newValue != nil {
					if err := p.client.SAdd(ctx, indexKey(table, column, newValue), keyString(id)).Err(); err != nil {
						return nil, err
					}
				}
			}
			return row, nil
		},
		Delete: func(ctx context.Context, id any) (int64, error) {
			existing, err := p.readRow(ctx, table, id)
			if err != nil {
				return 0, err
			}
			if existing == nil {
				return 0, nil
			}
			for _, column := range indexColumns {
				if value, ok := existing[column]; ok && value != nil {
					if err := p.client.SRem(ctx, indexKey(table, column, value), keyString(id)).Err(); err != nil {
						return 0, err
					}
				}
			}
			return p.client.Del(ctx, rowKey(table, id)).Result()
		},
	}
}

// ForeignKeyQuery resolves the table's rows whose foreign-key column equals
// the owner id, through the secondary-index set maintained by
// IndexedAccessors.
func (p *Provider) ForeignKeyQuery(table, fkColumn string) graft.QueryFunc {
	return func(ctx context.Context, id any) ([]graft.Row, error) {
		ids, err := p.client.SMembers(ctx, indexKey(table, fkColumn, id)).Result()
		if err != nil {
			return nil, err
		}
		return p.fetchRows(ctx, table, ids)
	}
}

// LinkQuery resolves a many-to-many relation through the link set. Link sets
// carry only target ids, so no link key fields can leak into result rows.
func (p *Provider) LinkQuery(table, idColumn, linkTable, ownColumn, otherColumn string) graft.QueryFunc {
	return func(ctx context.Context, id any) ([]graft.Row, error) {
		ids, err := p.client.SMembers(ctx, linkKey(linkTable, ownColumn, id)).Result()
		if err != nil {
			return nil, err
		}
		return p.fetchRows(ctx, table, ids)
	}
}

// LinkUpdater performs full link replacement on the link set.
func (p *Provider) LinkUpdater(linkTable, ownColumn, otherColumn, targetIDColumn string) graft.LinkUpdateFunc {
	return func(ctx context.Context, selfID any, children []graft.Row) error {
		key := linkKey(linkTable, ownColumn, selfID)
		if err := p.client.Del(ctx, key).Err(); err != nil {
			return err
		}
		if len(children) == 0 {
			return nil
		}
		members := make([]interface{}, 0, len(children))
		for _, child := range children {
			members = append(members, keyString(child[targetIDColumn]))
		}
		return p.client.SAdd(ctx, key, members...).Err()
	}
}

// =====================================
// Helper Functions
// =====================================

func rowKey(table string, id any) string {
	return table + ":" + keyString(id)
}

func indexKey(table, column string, value any) string {
	return table + ":ix:" + column + ":" + keyString(value)
}

func linkKey(linkTable, ownColumn string, id any) string {
	return linkTable + ":" + ownColumn + ":" + keyString(id)
}

// keyString folds the numeric types an id may travel as (int, int64, json
// float64) onto one key representation.
func keyString(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatInt(int64(n), 10)
	case float32:
		return strconv.FormatInt(int64(n), 10)
	}
	return fmt.Sprint(v)
}

func (p *Provider) readRow(ctx context.Context, table string, id any) (graft.Row, error) {
	data, err := p.client.Get(ctx, rowKey(table, id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var row graft.Row
	if err := json.Unmarshal([]byte(data), &row); err != nil {
		return nil, graft.Error{
			Type:    graft.ErrorTypeSerialization,
			Message: fmt.Sprintf("corrupt row at %q", rowKey(table, id)),
			Cause:   err,
		}
	}
	return row, nil
}

func (p *Provider) writeRow(ctx context.Context, table string, id any, row graft.Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return graft.Error{
			Type:    graft.ErrorTypeSerialization,
			Message: fmt.Sprintf("unserializable row for %q", rowKey(table, id)),
			Cause:   err,
		}
	}
	return p.client.Set(ctx, rowKey(table, id), data, 0).Err()
}

// fetchRows loads the rows for a set of id strings in a stable order.
// Numeric ids sort numerically so "10" lands after "2".
func (p *Provider) fetchRows(ctx context.Context, table string, ids []string) ([]graft.Row, error) {
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.ParseInt(ids[i], 10, 64)
		b, errB := strconv.ParseInt(ids[j], 10, 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
	rows := make([]graft.Row, 0, len(ids))
	for _, id := range ids {
		row, err := p.readRow(ctx, table, id)
		if err != nil {
			return nil, err
		}
		if row == nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}
