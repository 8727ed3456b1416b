package graftbun

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/graftdb/graft"
)

// BunAdapterTestSuite runs the engines end to end against SQLite.
type BunAdapterTestSuite struct {
	suite.Suite
	provider *Provider
	model    *graft.Model
	ctx      context.Context
}

func (suite *BunAdapterTestSuite) SetupSuite() {
	suite.ctx = context.Background()

	config := graft.Config{
		Driver:       "sqlite",
		Database:     ":memory:",
		MaxOpenConns: 1,
		Options: map[string]interface{}{
			"bun": map[string]interface{}{
				"log_level": "silent",
			},
		},
	}
	provider, err := (&Factory{}).Create(config)
	require.NoError(suite.T(), err)
	suite.provider = provider.(*Provider)

	schema := []string{
		`CREATE TABLE projects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			detail_id INTEGER
		)`,
		`CREATE TABLE details (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			notes TEXT
		)`,
		`CREATE TABLE tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			project_id INTEGER
		)`,
		`CREATE TABLE tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT NOT NULL
		)`,
		`CREATE TABLE project_tags (
			project_id INTEGER NOT NULL,
			tag_id INTEGER NOT NULL
		)`,
	}
	for _, stmt := range schema {
		_, err := suite.provider.DB().ExecContext(suite.ctx, stmt)
		require.NoError(suite.T(), err)
	}

	p := suite.provider
	suite.model = graft.MustModel([]graft.EntityConfig{
		graft.NewEntity("project", p.Accessors("projects", "id"),
			graft.NewToOne("detail", "detail", "detail_id").Owning(),
			graft.NewToMany("tasks", "task", "project_id",
				p.ForeignKeyQuery("tasks", "project_id")).Owning(),
			graft.NewToManyLinked("tags", "tag",
				p.LinkQuery("tags", "id", "project_tags", "project_id", "tag_id"),
				p.LinkUpdater("project_tags", "project_id", "tag_id", "id")),
		),
		graft.NewEntity("detail", p.Accessors("details", "id")),
		graft.NewEntity("task", p.Accessors("tasks", "id")),
		graft.NewEntity("tag", p.Accessors("tags", "id")),
	})
}

func (suite *BunAdapterTestSuite) TearDownSuite() {
	if suite.provider != nil {
		suite.provider.Close()
	}
}

func (suite *BunAdapterTestSuite) SetupTest() {
	for _, table := range []string{"project_tags", "tasks", "tags", "projects", "details"} {
		_, err := suite.provider.DB().ExecContext(suite.ctx, "DELETE FROM "+table)
		require.NoError(suite.T(), err)
	}
	suite.provider.DB().ExecContext(suite.ctx, "DELETE FROM sqlite_sequence")
}

func (suite *BunAdapterTestSuite) TestProviderInfo() {
	info := suite.provider.Info()
	assert.Equal(suite.T(), "bun", info.Name)
	assert.Equal(suite.T(), graft.DatabaseTypeSQL, info.DatabaseType)
	assert.NoError(suite.T(), suite.provider.Health())
}

func (suite *BunAdapterTestSuite) TestReadMissingRow() {
	accessors := suite.provider.Accessors("projects", "id")
	row, err := accessors.Read(suite.ctx, 12345)
	assert.NoError(suite.T(), err)
	assert.Nil(suite.T(), row)
}

func (suite *BunAdapterTestSuite) TestUpdateWithoutID() {
	accessors := suite.provider.Accessors("projects", "id")
	_, err := accessors.Update(suite.ctx, graft.Row{"name": "nameless"})
	assert.True(suite.T(), graft.IsPrecondition(err))
}

func (suite *BunAdapterTestSuite) TestSaveAndLoadAggregate() {
	saved, err := graft.Save(suite.ctx, suite.model, "project", graft.NewNode("project", graft.Row{
		"name":   "garden",
		"detail": graft.NewNode("detail", graft.Row{"notes": "urgent"}),
		"tasks": []*graft.Node{
			graft.NewNode("task", graft.Row{"title": "dig"}),
			graft.NewNode("task", graft.Row{"title": "plant"}),
		},
		"tags": []*graft.Node{
			graft.NewNode("tag", graft.Row{"label": "outdoor"}),
		},
	}))
	require.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 1, saved.Fields["id"])

	loaded, err := graft.Load(suite.ctx, suite.model, "project", saved.Fields["id"])
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), loaded)

	assert.Equal(suite.T(), "garden", loaded.Fields["name"])
	require.NotNil(suite.T(), loaded.Child("detail"))
	assert.Equal(suite.T(), "urgent", loaded.Child("detail").Fields["notes"])

	tasks := loaded.Children("tasks")
	require.Len(suite.T(), tasks, 2)
	assert.Equal(suite.T(), "dig", tasks[0].Fields["title"])
	assert.Equal(suite.T(), "plant", tasks[1].Fields["title"])

	tags := loaded.Children("tags")
	require.Len(suite.T(), tags, 1)
	assert.Equal(suite.T(), "outdoor", tags[0].Fields["label"])
	// Link key columns never leak into target rows.
	_, present := tags[0].Fields["project_id"]
	assert.False(suite.T(), present)
}

func (suite *BunAdapterTestSuite) TestSaveRemovesOrphans() {
	saved, err := graft.Save(suite.ctx, suite.model, "project", graft.NewNode("project", graft.Row{
		"name": "garden",
		"tasks": []*graft.Node{
			graft.NewNode("task", graft.Row{"title": "dig"}),
			graft.NewNode("task", graft.Row{"title": "plant"}),
		},
	}))
	require.NoError(suite.T(), err)

	saved.Fields["tasks"] = saved.Children("tasks")[:1]
	_, err = graft.Save(suite.ctx, suite.model, "project", saved)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), 1, suite.rowCount("tasks"))
}

func (suite *BunAdapterTestSuite) TestLinkReplacement() {
	saved, err := graft.Save(suite.ctx, suite.model, "project", graft.NewNode("project", graft.Row{
		"name": "garden",
		"tags": []*graft.Node{
			graft.NewNode("tag", graft.Row{"label": "outdoor"}),
			graft.NewNode("tag", graft.Row{"label": "spring"}),
		},
	}))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, suite.rowCount("project_tags"))

	saved.Fields["tags"] = saved.Children("tags")[:1]
	_, err = graft.Save(suite.ctx, suite.model, "project", saved)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), 1, suite.rowCount("project_tags"))
	// The unlinked tag row survives; only its link is gone.
	assert.Equal(suite.T(), 2, suite.rowCount("tags"))
}

func (suite *BunAdapterTestSuite) TestDeleteCascade() {
	saved, err := graft.Save(suite.ctx, suite.model, "project", graft.NewNode("project", graft.Row{
		"name":   "garden",
		"detail": graft.NewNode("detail", graft.Row{"notes": "urgent"}),
		"tasks": []*graft.Node{
			graft.NewNode("task", graft.Row{"title": "dig"}),
			graft.NewNode("task", graft.Row{"title": "plant"}),
		},
		"tags": []*graft.Node{
			graft.NewNode("tag", graft.Row{"label": "outdoor"}),
		},
	}))
	require.NoError(suite.T(), err)

	loaded, err := graft.Load(suite.ctx, suite.model, "project", saved.Fields["id"])
	require.NoError(suite.T(), err)

	count, err := graft.Delete(suite.ctx, suite.model, "project", loaded)
	require.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 4, count)

	assert.Equal(suite.T(), 0, suite.rowCount("projects"))
	assert.Equal(suite.T(), 0, suite.rowCount("tasks"))
	assert.Equal(suite.T(), 0, suite.rowCount("details"))
	assert.Equal(suite.T(), 0, suite.rowCount("project_tags"))
	assert.Equal(suite.T(), 1, suite.rowCount("tags"))
}

func (suite *BunAdapterTestSuite) TestPartialUpdateThroughNarrowedModel() {
	saved, err := graft.Save(suite.ctx, suite.model, "project", graft.NewNode("project", graft.Row{
		"name": "garden",
		"tasks": []*graft.Node{
			graft.NewNode("task", graft.Row{"title": "dig"}),
		},
	}))
	require.NoError(suite.T(), err)

	narrowed := suite.model.Only(graft.Pick("project"))
	_, err = graft.Save(suite.ctx, narrowed, "project", graft.NewNode("project", graft.Row{
		"id":   saved.Fields["id"],
		"name": "yard",
	}))
	require.NoError(suite.T(), err)

	loaded, err := graft.Load(suite.ctx, suite.model, "project", saved.Fields["id"])
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "yard", loaded.Fields["name"])
	assert.Len(suite.T(), loaded.Children("tasks"), 1)
}

func (suite *BunAdapterTestSuite) rowCount(table string) int {
	var count int
	err := suite.provider.DB().
		QueryRowContext(suite.ctx, "SELECT COUNT(*) FROM "+table).
		Scan(&count)
	require.NoError(suite.T(), err)
	return count
}

func TestBunAdapterTestSuite(t *testing.T) {
	suite.Run(t, new(BunAdapterTestSuite))
}

func TestFactoryRejectsUnknownDriver(t *testing.T) {
	_, err := (&Factory{}).Create(graft.Config{Driver: "tape"})
	assert.True(t, graft.IsErrorType(err, graft.ErrorTypeUnsupported))
}

func TestFactorySupportedDrivers(t *testing.T) {
	drivers := (&Factory{}).SupportedDrivers()
	assert.Contains(t, drivers, "sqlite")
	assert.Contains(t, drivers, "postgres")
	assert.Contains(t, drivers, "mysql")
}
