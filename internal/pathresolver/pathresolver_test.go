package pathresolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-imi/imi/internal/models"
)

func trunkType() models.WorktreeType {
	return models.WorktreeType{ID: 1, Name: "trunk", BranchPrefix: "", WorktreePrefix: "trunk-", IsBuiltin: true}
}

func featType() models.WorktreeType {
	return models.WorktreeType{ID: 2, Name: "feat", BranchPrefix: "feat/", WorktreePrefix: "feat-", IsBuiltin: true}
}

func TestResolveJoinsHubAndPrefix(t *testing.T) {
	project := models.Project{TrunkPath: "/home/dev/acme/trunk-main"}
	path, err := Resolve(project, featType(), "widgets")
	require.NoError(t, err)
	assert.Equal(t, "/home/dev/acme/feat-widgets", path)
}

func TestResolveRejectsPathSeparatorsInName(t *testing.T) {
	project := models.Project{TrunkPath: "/home/dev/acme/trunk-main"}
	_, err := Resolve(project, featType(), "sub/dir")
	require.Error(t, err)
}

func TestResolveRejectsTypeWithoutPrefix(t *testing.T) {
	project := models.Project{TrunkPath: "/home/dev/acme/trunk-main"}
	_, err := Resolve(project, models.WorktreeType{Name: "broken"}, "x")
	require.Error(t, err)
}

func TestClusterHubIsTrunkParent(t *testing.T) {
	assert.Equal(t, "/home/dev/acme", ClusterHub("/home/dev/acme/trunk-main"))
}

func TestResolveTrunk(t *testing.T) {
	got := ResolveTrunk("/home/dev/acme", trunkType(), "main")
	assert.Equal(t, "/home/dev/acme/trunk-main", got)
}

func TestBranchNameTrunkUsesDefaultBranch(t *testing.T) {
	assert.Equal(t, "main", BranchName(trunkType(), "main", "main"))
}

func TestBranchNameTypedUsesPrefix(t *testing.T) {
	assert.Equal(t, "feat/widgets", BranchName(featType(), "widgets", "main"))
}

func TestClassifyBasename(t *testing.T) {
	types := []models.WorktreeType{trunkType(), featType()}

	wtType, name, ok := ClassifyBasename("feat-widgets", types)
	require.True(t, ok)
	assert.Equal(t, "feat", wtType.Name)
	assert.Equal(t, "widgets", name)

	_, _, ok = ClassifyBasename("unrelated-dir", types)
	assert.False(t, ok)
}

func TestIsTrunkBasename(t *testing.T) {
	assert.True(t, IsTrunkBasename("trunk-main", trunkType()))
	assert.False(t, IsTrunkBasename("feat-widgets", trunkType()))
}

func TestMetadataDirAndManifestPath(t *testing.T) {
	hub := "/home/dev/acme"
	assert.Equal(t, "/home/dev/acme/.iMi", MetadataDir(hub))
	assert.Equal(t, "/home/dev/acme/.iMi/project.json", ProjectManifestPath(hub))
	assert.Equal(t, "/home/dev/acme/sync", SyncDir(hub))
}
