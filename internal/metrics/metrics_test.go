package metrics

import (
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	noopRecorder
	mu     sync.Mutex
	passes []string
	tools  []string
}

func (c *countingRecorder) IncPassTotal(role, model string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passes = append(c.passes, role+"/"+model)
}

func (c *countingRecorder) IncToolTotal(tool string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = append(c.tools, tool)
}

func TestDefaultIsNoop(t *testing.T) {
	SetRecorder(nil)
	_, ok := Default().(*noopRecorder)
	assert.True(t, ok)
	// Must not panic.
	TimePass("first", "m")(true)
	TimeTool("t")(false)
	TimeOp("op")(true)
}

func TestTimeHelpersUseCurrentRecorder(t *testing.T) {
	rec := &countingRecorder{}
	SetRecorder(rec)
	defer SetRecorder(nil)

	TimePass("referee", "ollama/m")(true)
	TimeTool("langextract_extract")(false)

	assert.Equal(t, []string{"referee/ollama/m"}, rec.passes)
	assert.Equal(t, []string{"langextract_extract"}, rec.tools)
}

func TestPromRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	p := NewPromRecorder(reg)

	p.IncPassTotal("first", "ollama/a", true)
	p.IncPassTotal("first", "ollama/a", true)
	p.IncPassTotal("second", "ollama/b", false)
	p.ObserveAgreement("general", 0.5)
	p.IncToolTotal("langextract_analyze", true)
	p.IncDBOpTotal("save_run", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.passTotal.WithLabelValues("first", "ollama/a", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.passTotal.WithLabelValues("second", "ollama/b", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.toolTotal.WithLabelValues("langextract_analyze", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.dbTotal.WithLabelValues("save_run", "true")))

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(body), "extraction_passes_total"))
	assert.True(t, strings.Contains(string(body), "arbitration_agreement_score"))

	resp, err = srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))
}

func TestInitDisabledIsNoop(t *testing.T) {
	SetRecorder(nil)
	require.NoError(t, Init(false, ""))
	_, ok := Default().(*noopRecorder)
	assert.True(t, ok)
}

func TestInitReturnsBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	SetRecorder(nil)
	err = Init(true, ln.Addr().String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ln.Addr().String())
	_, ok := Default().(*noopRecorder)
	assert.True(t, ok, "recorder must stay no-op when the listener fails")
}
