package pool

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetValueRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  Value
	}{
		{"Real", "lowlevel.average_loudness", Real(0.93)},
		{"NaN", "lowlevel.dissonance.mean", Real(math.NaN())},
		{"Reals", "lowlevel.mfcc.mean", Reals(1, 2, 3)},
		{"EmptyReals", "lowlevel.empty", Reals()},
		{"String", "tonal.key_key", String("C#")},
		{"Strings", "metadata.tags.genre", Strings("rock", "pop")},
		{"Matrix", "lowlevel.mfcc.cov", RealMatrix([][]float64{{1, 0}, {0, 1}})},
	}

	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, p.Set(tt.key, tt.val))
			got, err := p.Value(tt.key)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.val), "got %s want %s", got, tt.val)
		})
	}
}

func TestSetOverwriteChangesKind(t *testing.T) {
	p := New()
	require.NoError(t, p.Set("rhythm.bpm", Real(120)))
	require.NoError(t, p.Set("rhythm.other", Real(1)))
	require.NoError(t, p.Set("rhythm.bpm", String("fast")))

	s, err := p.GetString("rhythm.bpm")
	require.NoError(t, err)
	assert.Equal(t, "fast", s)
	assert.Equal(t, []string{"rhythm.bpm", "rhythm.other"}, p.DescriptorNames("rhythm"))
}

func TestSetRejectsBadKeys(t *testing.T) {
	p := New()
	for _, key := range []string{"", ".a", "a.", "a..b"} {
		err := p.Set(key, Real(1))
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
	assert.ErrorIs(t, p.Set("a", Value{}), ErrInvalidValue)
	assert.Equal(t, 0, p.Len())
}

func TestTypedReadErrors(t *testing.T) {
	p := New()
	require.NoError(t, p.Set("tonal.key_scale", String("minor")))

	_, err := p.GetReal("tonal.missing")
	var knf *KeyNotFoundError
	require.ErrorAs(t, err, &knf)
	assert.Equal(t, "tonal.missing", knf.Key)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = p.GetReal("tonal.key_scale")
	var tm *TypeMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, KindReal, tm.Want)
	assert.Equal(t, KindString, tm.Got)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestValuesAreCopied(t *testing.T) {
	p := New()
	in := []float64{1, 2, 3}
	require.NoError(t, p.Set("lowlevel.x", Reals(in...)))
	in[0] = 99

	out, err := p.GetReals("lowlevel.x")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, out)

	out[1] = 42
	again, _ := p.GetReals("lowlevel.x")
	assert.Equal(t, []float64{1, 2, 3}, again)
}

func TestAddIsDistinctFromSet(t *testing.T) {
	p := New()
	require.NoError(t, p.Add("lowlevel.frames", Real(1)))
	require.NoError(t, p.Add("lowlevel.frames", Real(2)))
	got, err := p.GetReals("lowlevel.frames")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, got)

	require.NoError(t, p.Add("metadata.tags.artist", String("a")))
	require.NoError(t, p.Add("metadata.tags.artist", String("b")))
	ss, err := p.GetStrings("metadata.tags.artist")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ss)

	require.NoError(t, p.Add("lowlevel.mfcc.frames", Reals(1, 2)))
	require.NoError(t, p.Add("lowlevel.mfcc.frames", Reals(3, 4)))
	m, err := p.GetRealMatrix("lowlevel.mfcc.frames")
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, m)

	err = p.Add("lowlevel.frames", String("nope"))
	assert.ErrorIs(t, err, ErrTypeMismatch)
	got, _ = p.GetReals("lowlevel.frames")
	assert.Equal(t, []float64{1, 2}, got, "failed Add must not change the value")
}

func TestRemove(t *testing.T) {
	p := New()
	require.NoError(t, p.Set("a.b", Real(1)))
	require.NoError(t, p.Remove("a.b"))
	assert.False(t, p.Has("a.b"))
	assert.Empty(t, p.DescriptorNames(""))

	err := p.Remove("a.b")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRemoveNamespaceLeavesOthersUnchanged(t *testing.T) {
	p := New()
	require.NoError(t, p.Set("lowlevel.a", Real(1)))
	require.NoError(t, p.Set("lowlevelx.a", Real(2)))
	require.NoError(t, p.Set("metadata.version.essentia", String("2.1")))
	require.NoError(t, p.Set("lowlevel.b.c", Reals(1, 2)))
	require.NoError(t, p.Set("tonal.c", Real(3)))
	before := p.Clone()

	n := p.RemoveNamespace("lowlevel")
	assert.Equal(t, 2, n)
	assert.Empty(t, p.DescriptorNames("lowlevel"))
	assert.Equal(t, []string{"lowlevelx.a", "metadata.version.essentia", "tonal.c"}, p.DescriptorNames(""))

	for _, k := range p.DescriptorNames("") {
		got, _ := p.Value(k)
		want, _ := before.Value(k)
		assert.True(t, got.Equal(want), k)
	}

	assert.Equal(t, 0, p.RemoveNamespace("rhythm"))
}

func TestDescriptorNamesInterleavedOrder(t *testing.T) {
	p := New()
	require.NoError(t, p.Set("rhythm.bpm", Real(120)))
	require.NoError(t, p.Set("lowlevel.z", Real(1)))
	require.NoError(t, p.Set("rhythm.beats_count", Real(300)))
	require.NoError(t, p.Set("tonal.key", String("A")))
	require.NoError(t, p.Set("lowlevel.a", Real(2)))
	require.NoError(t, p.Set("rhythm.danceability", Real(1.1)))

	assert.Equal(t, []string{"rhythm.bpm", "rhythm.beats_count", "rhythm.danceability"}, p.DescriptorNames("rhythm"))
	assert.Equal(t, []string{"lowlevel.z", "lowlevel.a"}, p.DescriptorNames("lowlevel"))
	assert.Equal(t, []string{"rhythm", "lowlevel", "tonal"}, p.Namespaces())
}

func TestDescriptorNamesSegmentPrefix(t *testing.T) {
	p := New()
	require.NoError(t, p.Set("metadata.version.essentia", String("2.1")))
	require.NoError(t, p.Set("metadata.versions", String("x")))
	require.NoError(t, p.Set("metadata.version", String("y")))

	assert.Equal(t, []string{"metadata.version.essentia", "metadata.version"}, p.DescriptorNames("metadata.version"))
}

func TestMergeModes(t *testing.T) {
	base := func() *Pool {
		p := New()
		_ = p.Set("metadata.tags.genre", String("rock"))
		_ = p.Set("highlevel.n", Reals(1))
		return p
	}
	src := New()
	require.NoError(t, src.Set("metadata.tags.genre", String("jazz")))
	require.NoError(t, src.Set("metadata.tags.mbid", String("1234")))
	require.NoError(t, src.Set("highlevel.n", Real(2)))

	t.Run("Keep", func(t *testing.T) {
		p := base()
		conflicts, err := p.Merge(src, MergeKeep)
		require.NoError(t, err)
		assert.Equal(t, []string{"metadata.tags.genre", "highlevel.n"}, conflicts)
		g, _ := p.GetString("metadata.tags.genre")
		assert.Equal(t, "rock", g)
		m, _ := p.GetString("metadata.tags.mbid")
		assert.Equal(t, "1234", m)
	})

	t.Run("Overwrite", func(t *testing.T) {
		p := base()
		conflicts, err := p.Merge(src, MergeOverwrite)
		require.NoError(t, err)
		assert.Empty(t, conflicts)
		g, _ := p.GetString("metadata.tags.genre")
		assert.Equal(t, "jazz", g)
		n, _ := p.GetReal("highlevel.n")
		assert.Equal(t, 2.0, n)
	})

	t.Run("Append", func(t *testing.T) {
		p := base()
		_, err := p.Merge(src, MergeAppend)
		assert.ErrorIs(t, err, ErrTypeMismatch, "string onto string scalar cannot append")

		p = base()
		only := New()
		require.NoError(t, only.Set("highlevel.n", Real(2)))
		_, err = p.Merge(only, MergeAppend)
		require.NoError(t, err)
		n, _ := p.GetReals("highlevel.n")
		assert.Equal(t, []float64{1, 2}, n)
	})

	t.Run("IdenticalIsNotConflict", func(t *testing.T) {
		p := base()
		same := New()
		require.NoError(t, same.Set("metadata.tags.genre", String("rock")))
		conflicts, err := p.Merge(same, MergeKeep)
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})
}

func TestTree(t *testing.T) {
	p := New()
	require.NoError(t, p.Set("metadata.version.essentia", String("2.1")))
	require.NoError(t, p.Set("highlevel.mood.value", String("happy")))
	require.NoError(t, p.Set("metadata.audio.length", Real(200)))

	root, err := p.Tree()
	require.NoError(t, err)
	require.Len(t, root.Children, 2)
	assert.Equal(t, "metadata", root.Children[0].Name)
	assert.Equal(t, "highlevel", root.Children[1].Name)

	meta, ok := root.Child("metadata")
	require.True(t, ok)
	require.Len(t, meta.Children, 2)
	assert.Equal(t, "version", meta.Children[0].Name)
	leaf, ok := meta.Children[0].Child("essentia")
	require.True(t, ok)
	require.True(t, leaf.IsLeaf())
	assert.True(t, leaf.Value.Equal(String("2.1")))
}

func TestTreeStructureConflict(t *testing.T) {
	p := New()
	require.NoError(t, p.Set("a.b", Real(1)))
	require.NoError(t, p.Set("a.b.c", Real(2)))
	_, err := p.Tree()
	var se *StructureError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "a.b", se.Parent)

	p = New()
	require.NoError(t, p.Set("a.b.c", Real(2)))
	require.NoError(t, p.Set("a.b", Real(1)))
	_, err = p.Tree()
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "a.b.c", se.Key)
}

func TestNamespaceAndJoin(t *testing.T) {
	assert.Equal(t, "metadata", Namespace("metadata.version.x"))
	assert.Equal(t, "tonal", Namespace("tonal"))
	assert.Equal(t, "a.b.c", Join("a", "b", "c"))
}
