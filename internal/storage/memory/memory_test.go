package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/catalog"
)

func TestKV_CopiesValues(t *testing.T) {
	ctx := context.Background()
	kv := NewKV()

	_, ok, err := kv.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	in := []byte("abc")
	require.NoError(t, kv.Save(ctx, "k", in))
	in[0] = 'x'

	got, ok, err := kv.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", string(got))
}

func TestDocuments_PutMergesTopLevel(t *testing.T) {
	ctx := context.Background()
	docs := NewDocuments()

	require.NoError(t, docs.Put(ctx, "orders/O1", []byte(`{"status":"pending","timeline":{"1":"pending"},"note":"x"}`)))
	require.NoError(t, docs.Put(ctx, "orders/O1", []byte(`{"timeline":{"2":"completed"},"note":null,"by":"U1"}`)))

	got, ok, err := docs.Get(ctx, "orders/O1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"status":"pending","timeline":{"2":"completed"},"by":"U1"}`, string(got))
	assert.Equal(t, []string{"orders/O1"}, docs.Paths())

	require.NoError(t, docs.Put(ctx, "orders/O2", []byte(`{"status":"pending","note":null}`)))
	got, ok, err = docs.Get(ctx, "orders/O2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"status":"pending"}`, string(got))
}

func TestDocuments_RejectsNonObject(t *testing.T) {
	docs := NewDocuments()
	require.Error(t, docs.Put(context.Background(), "p", []byte(`[1]`)))
	require.Error(t, docs.Put(context.Background(), "p", []byte(`{`)))
	assert.Empty(t, docs.Paths())
}

func TestMergeTop(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		patch string
		want  string
	}{
		{name: "empty base", base: ``, patch: `{"a":1}`, want: `{"a":1}`},
		{name: "empty base drops nulls", base: ``, patch: `{"a":1,"b":null}`, want: `{"a":1}`},
		{name: "replace", base: `{"a":1,"b":2}`, patch: `{"a":3}`, want: `{"a":3,"b":2}`},
		{name: "delete", base: `{"a":1,"b":2}`, patch: `{"b":null}`, want: `{"a":1}`},
		{name: "add", base: `{"a":1}`, patch: `{"c":[1,2]}`, want: `{"a":1,"c":[1,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MergeTop([]byte(tt.base), []byte(tt.patch))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestCatalog_UpsertBumpsVersion(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()

	v, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, c.Upsert(ctx, []catalog.Product{{ID: "P2", Name: "Oil filter"}, {ID: "P1", Name: "Brake pad"}}))
	require.NoError(t, c.Upsert(ctx, []catalog.Product{{ID: "P1", Name: "Brake pad set"}}))

	v, err = c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	products, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "P1", products[0].ID)
	assert.Equal(t, "Brake pad set", products[0].Name)
}
