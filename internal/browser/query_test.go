package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webgym/api/schemas"
)

func TestDecodeCandidates(t *testing.T) {
	t.Parallel()

	raw := []byte(`[
		{"tag":"button","role":"button","text":"Checkout","bbox":{"x":10,"y":20,"width":80,"height":30},"clickable":true,"focusable":true,"visible":true,"enabled":true},
		{"tag":"input","role":"textbox","text":"Search","bbox":{"x":5,"y":5,"width":200,"height":24},"focusable":true,"editable":true,"visible":true,"enabled":true}
	]`)

	got, err := decodeCandidates(raw, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "button", got[0].Tag)
	assert.Equal(t, schemas.RoleButton, got[0].Role)
	assert.Equal(t, "Checkout", got[0].Text)
	assert.True(t, got[0].Actionable())

	assert.Equal(t, schemas.RoleTextbox, got[1].Role)
	assert.True(t, got[1].Editable)
	assert.False(t, got[1].Clickable)
}

func TestDecodeCandidatesUnknownRole(t *testing.T) {
	t.Parallel()

	raw := []byte(`[{"tag":"div","role":"combobox","text":"pick","visible":true,"enabled":true}]`)

	got, err := decodeCandidates(raw, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, schemas.RoleGeneric, got[0].Role)
}

func TestDecodeCandidatesZeroesDegenerateBox(t *testing.T) {
	t.Parallel()

	raw := []byte(`[{"tag":"a","role":"link","bbox":{"x":3,"y":4,"width":-9,"height":12},"visible":true,"enabled":true}]`)

	got, err := decodeCandidates(raw, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, schemas.BBox{}, got[0].BBox)

	_, _, ok := got[0].BBox.Center()
	assert.False(t, ok)
}

func TestDecodeCandidatesSkipsEmptyTag(t *testing.T) {
	t.Parallel()

	raw := []byte(`[{"tag":"","role":"button"},{"tag":"button","role":"button"}]`)

	got, err := decodeCandidates(raw, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "button", got[0].Tag)
}

func TestDecodeCandidatesMalformed(t *testing.T) {
	t.Parallel()

	_, err := decodeCandidates([]byte(`{"not":"an array"}`), zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding candidate query result")
}

func TestDecodeCandidatesTruncatesText(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", maxCandidateText+10)
	raw := []byte(`[{"tag":"button","role":"button","text":"` + long + `"}]`)

	got, err := decodeCandidates(raw, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, []rune(got[0].Text), maxCandidateText)
}

func TestCandidateQueryScriptEmbedsSelectors(t *testing.T) {
	t.Parallel()

	assert.Contains(t, candidateQueryScript, "querySelectorAll")
	assert.Contains(t, candidateQueryScript, "a[href]")
	assert.Contains(t, candidateQueryScript, "contenteditable")
}
