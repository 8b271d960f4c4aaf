package scripting_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/chatbridge/internal/scripting"
)

const censorScript = `
function filter(kind, sender, body)
	if string.find(body, "goldseller", 1, true) then
		return nil
	end
	if kind == "topic" then
		return string.upper(body)
	end
	return body
end
`

func TestFilterRewritesAndDrops(t *testing.T) {
	f, err := scripting.NewFilterFromString(censorScript, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer f.Close()

	out, keep, err := f.Apply("topic", "Alice", "lfg deadmines")
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, "LFG DEADMINES", out)

	out, keep, err = f.Apply("group", "Alice", "hello")
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, "hello", out)

	_, keep, err = f.Apply("direct", "Spammer", "visit goldseller now")
	require.NoError(t, err)
	assert.False(t, keep)
}

func TestFilterBooleanResults(t *testing.T) {
	f, err := scripting.NewFilterFromString(`function filter(kind, sender, body) return sender ~= "Muted" end`, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer f.Close()

	out, keep, err := f.Apply("topic", "Alice", "hi")
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, "hi", out)

	_, keep, err = f.Apply("topic", "Muted", "hi")
	require.NoError(t, err)
	assert.False(t, keep)
}

func TestFilterMissingFunction(t *testing.T) {
	_, err := scripting.NewFilterFromString(`local x = 1`, 0, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, scripting.ErrNoFilterFunc)
}

func TestFilterSyntaxError(t *testing.T) {
	_, err := scripting.NewFilterFromString(`function filter(`, 0, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestFilterRuntimeErrorAndBadReturn(t *testing.T) {
	f, err := scripting.NewFilterFromString(`
function filter(kind, sender, body)
	if body == "boom" then error("boom") end
	if body == "num" then return 42 end
	if body == "spin" then while true do end end
	return body
end`, 1000, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer f.Close()

	_, keep, err := f.Apply("topic", "A", "boom")
	assert.Error(t, err)
	assert.False(t, keep)

	_, keep, err = f.Apply("topic", "A", "num")
	assert.Error(t, err)
	assert.False(t, keep)

	_, keep, err = f.Apply("topic", "A", "spin")
	assert.Error(t, err)
	assert.False(t, keep)

	out, keep, err := f.Apply("topic", "A", "fine")
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, "fine", out)
}

func TestNewFilterFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.lua")
	require.NoError(t, os.WriteFile(path, []byte(censorScript), 0644))

	f, err := scripting.NewFilter(path, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer f.Close()

	out, keep, err := f.Apply("topic", "A", "hi")
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, "HI", out)

	_, err = scripting.NewFilter(filepath.Join(t.TempDir(), "missing.lua"), 0, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestFilterConcurrentApply(t *testing.T) {
	f, err := scripting.NewFilterFromString(censorScript, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer f.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				out, keep, err := f.Apply("group", "A", "x")
				assert.NoError(t, err)
				assert.True(t, keep)
				assert.Equal(t, "x", out)
			}
		}()
	}
	wg.Wait()
}
