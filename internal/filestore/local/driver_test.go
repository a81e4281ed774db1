package local

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := New(context.Background(), filestore.LocalConfig(t.TempDir()))
	require.NoError(t, err)
	return d
}

func put(t *testing.T, d *Driver, key, body string) {
	t.Helper()
	_, err := d.PutObject(context.Background(), ".", key, strings.NewReader(body), int64(len(body)), filestore.ContentTypeYAML)
	require.NoError(t, err)
}

func TestDriver_PutGetRemove(t *testing.T) {
	ctx := context.Background()
	d := newDriver(t)
	require.NoError(t, d.Ping(ctx))

	info, err := d.PutObject(ctx, ".", "prod/schema.public.yaml", bytes.NewBufferString("a: 1\n"), 5, filestore.ContentTypeYAML)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.NotEmpty(t, info.ETag)

	data, err := filestore.ReadAll(ctx, d, ".", "prod/schema.public.yaml")
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", string(data))

	require.NoError(t, d.RemoveObject(ctx, ".", "prod/schema.public.yaml"))
	_, err = d.StatObject(ctx, ".", "prod/schema.public.yaml")
	assert.True(t, errs.IsNotFound(err))

	// removing twice is fine
	require.NoError(t, d.RemoveObject(ctx, ".", "prod/schema.public.yaml"))
}

func TestDriver_ListObjects(t *testing.T) {
	ctx := context.Background()
	d := newDriver(t)
	put(t, d, "db.yaml", "x")
	put(t, d, "prod/a.yaml", "x")
	put(t, d, "prod/sub/b.yaml", "x")
	put(t, d, "other/c.yaml", "x")

	recursive, err := d.ListObjects(ctx, ".", filestore.ListOptions{Prefix: "prod/", Recursive: true})
	require.NoError(t, err)
	var keys []string
	for _, o := range recursive {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"prod/a.yaml", "prod/sub/b.yaml"}, keys)

	flat, err := d.ListObjects(ctx, ".", filestore.ListOptions{Prefix: "prod/"})
	require.NoError(t, err)
	require.Len(t, flat, 2)
	assert.Equal(t, "prod/a.yaml", flat[0].Key)
	assert.Equal(t, "prod/sub/", flat[1].Key)
	assert.True(t, flat[1].IsDir)

	missing, err := d.ListObjects(ctx, "nobucket", filestore.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestDriver_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	d := newDriver(t)

	for _, key := range []string{"../x.yaml", "a/../../x.yaml", "", "/abs.yaml"} {
		_, err := d.PutObject(ctx, ".", key, strings.NewReader("x"), 1, filestore.ContentTypeYAML)
		assert.True(t, errs.IsInvalidInput(err), key)
	}
	_, err := d.ListObjects(ctx, "../up", filestore.ListOptions{})
	assert.True(t, errs.IsInvalidInput(err))
}
