package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func h(b byte) [8]byte {
	return [8]byte{b, b, b, b, b, b, b, b}
}

func TestCollection_EncodeDecodeRoundTrip(t *testing.T) {
	c := Collection{Name: "widgets", NameHash: h(1), DocumentCount: 42}
	got, err := DecodeCollection(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestIndexHeader_EncodeDecodeRoundTrip_WithEntryPoint(t *testing.T) {
	ep := h(9)
	original := IndexHeader{
		CollectionName: "widgets",
		FieldName:      "embedding",
		CollectionHash: h(1),
		FieldHash:      h(2),
		IndexHash:      [16]byte{1, 2, 3},
		DistanceMetric: "euclidean",
		Dimension:      128,
		K:              16,
		M:              2.0,
		ReverseSize:    1.4427,
		EntryPoint:     &ep,
		LayerCount:     3,
		ElementCount:   500,
	}
	got, err := DecodeIndexHeader(original.Encode())
	require.NoError(t, err)
	require.NotNil(t, got.EntryPoint)
	assert.Equal(t, *original.EntryPoint, *got.EntryPoint)
	got.EntryPoint = original.EntryPoint
	assert.Equal(t, original, got)
}

func TestIndexHeader_EncodeDecodeRoundTrip_NoEntryPoint(t *testing.T) {
	original := IndexHeader{
		CollectionName: "widgets",
		FieldName:      "embedding",
		DistanceMetric: "euclidean",
		Dimension:      3,
	}
	got, err := DecodeIndexHeader(original.Encode())
	require.NoError(t, err)
	assert.Nil(t, got.EntryPoint)
}

func TestDocument_EncodeDecodeRoundTrip(t *testing.T) {
	d := Document{IDUser: "doc-1", IDHash: h(3), Data: []byte(`{"id":"doc-1","v":[1,2,3]}`)}
	got, err := DecodeDocument(d.Encode())
	require.NoError(t, err)
	assert.Equal(t, d.IDUser, got.IDUser)
	assert.Equal(t, d.IDHash, got.IDHash)
	assert.JSONEq(t, string(d.Data), string(got.Data))
}

func TestDocument_FieldVector(t *testing.T) {
	d := Document{Data: []byte(`{"id":"doc-1","embedding":[1.5,2.5,3.5]}`)}
	vec, ok := d.FieldVector("embedding")
	require.True(t, ok)
	assert.Equal(t, []float64{1.5, 2.5, 3.5}, vec)

	_, ok = d.FieldVector("missing")
	assert.False(t, ok)
}

func TestEncodeDecodeVector_RoundTrip(t *testing.T) {
	v := []float64{0.1, -2.3, 4.5, 0}
	got, err := DecodeVector(EncodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestDecodeVector_RejectsWrongLength(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
