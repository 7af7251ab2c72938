package topology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-attackgraph/pkg/model"
)

const sampleCompose = `
version: "3"
services:
  web:
    image: nginx:1.19
    ports:
      - "80:80"
    networks:
      - frontend
  api:
    image: example/api:2.0
    networks:
      frontend:
        aliases: [api]
      backend: {}
  db:
    image: postgres:9.6
    networks: [backend]
  worker:
    build: ./worker
networks:
  frontend:
  backend:
  spare:
`

func loadSample(t *testing.T) *Topology {
	t.Helper()
	topo, err := ParseCompose([]byte(sampleCompose))
	require.NoError(t, err)
	return topo
}

func TestParseCompose(t *testing.T) {
	topo := loadSample(t)

	assert.Equal(t, []string{"api", "db", "web", "worker"}, topo.ServiceNames())
	assert.Equal(t, []string{"backend", "default", "exposed", "frontend", "spare"}, topo.SubnetNames())

	web, ok := topo.Service("web")
	require.True(t, ok)
	assert.True(t, web.Exposed)
	assert.Equal(t, "nginx:1.19", web.Image)
	assert.Equal(t, []string{"frontend"}, web.Networks)

	worker, _ := topo.Service("worker")
	assert.Equal(t, "worker", worker.Image)
	assert.Equal(t, []string{DefaultNetwork}, worker.Networks)

	api, _ := topo.Service("api")
	assert.ElementsMatch(t, []string{"frontend", "backend"}, api.Networks)
}

func TestGateways(t *testing.T) {
	topo := loadSample(t)

	assert.Equal(t, []string{"api", "web"}, topo.GatewayServices())
	assert.False(t, topo.IsGateway("db"))
	assert.False(t, topo.IsGateway(model.Outside))

	exposed, ok := topo.Subnet(model.Exposed)
	require.True(t, ok)
	assert.Equal(t, []string{"outside", "web"}, exposed.Members())
	assert.Equal(t, []string{"outside", "web"}, exposed.Gateways())

	frontend, _ := topo.Subnet("frontend")
	assert.Equal(t, []string{"api", "web"}, frontend.Members())
	assert.Equal(t, []string{"api", "web"}, frontend.Gateways())

	backend, _ := topo.Subnet("backend")
	assert.Equal(t, []string{"api"}, backend.Gateways())
}

func TestNeighbors(t *testing.T) {
	topo := loadSample(t)

	n, err := topo.Neighbors(model.Outside)
	require.NoError(t, err)
	assert.Equal(t, []string{"outside", "web"}, n)

	n, err = topo.Neighbors("web")
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "outside", "web"}, n)

	n, err = topo.Neighbors("db")
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "db"}, n)

	_, err = topo.Neighbors("ghost")
	assert.True(t, model.IsReference(err))
}

func TestWithServiceIsCopyOnWrite(t *testing.T) {
	topo := loadSample(t)

	next, affected, err := topo.WithService(Service{
		Name: "honey-0", Image: "nginx", Networks: []string{"frontend", "backend"}, Honeypot: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"backend", "frontend"}, affected)
	assert.True(t, next.IsGateway("honey-0"))
	assert.True(t, next.IsHoneypot("honey-0"))

	_, ok := topo.Service("honey-0")
	assert.False(t, ok, "original topology must not change")
	frontend, _ := topo.Subnet("frontend")
	assert.False(t, frontend.HasMember("honey-0"))

	_, _, err = next.WithService(Service{Name: "honey-0"})
	assert.Error(t, err)
}

func TestWithoutService(t *testing.T) {
	topo := loadSample(t)

	next, affected, err := topo.WithoutService("web")
	require.NoError(t, err)
	assert.Equal(t, []string{"exposed", "frontend"}, affected)

	exposed, _ := next.Subnet(model.Exposed)
	assert.Equal(t, []string{"outside"}, exposed.Members())
	assert.False(t, next.IsGateway("web"))

	_, _, err = topo.WithoutService("ghost")
	assert.True(t, model.IsReference(err))
}

func TestReservedNames(t *testing.T) {
	_, err := New([]Service{{Name: model.Outside}})
	assert.Error(t, err)
	_, err = New([]Service{{Name: "a", Networks: []string{model.Exposed}}})
	assert.Error(t, err)
}

func TestConnectivityGraph(t *testing.T) {
	topo := loadSample(t)
	cg, err := topo.ConnectivityGraph()
	require.NoError(t, err)

	order, err := cg.Order()
	require.NoError(t, err)
	assert.Equal(t, 5, order)

	edges, err := cg.Edges()
	require.NoError(t, err)
	assert.Equal(t, [][2]string{
		{"api", "db"},
		{"api", "web"},
		{"outside", "web"},
	}, edges)

	deg, err := cg.Degree("api")
	require.NoError(t, err)
	assert.Equal(t, 2, deg)

	deg, err = cg.Degree("worker")
	require.NoError(t, err)
	assert.Equal(t, 0, deg)

	_, err = cg.Degree("ghost")
	assert.Error(t, err)
}

func TestGatewayGraph(t *testing.T) {
	topo := loadSample(t)
	gg, err := topo.GatewayGraph()
	require.NoError(t, err)

	edges, err := gg.Edges()
	require.NoError(t, err)
	assert.Equal(t, [][2]string{
		{"backend", "frontend"},
		{"exposed", "frontend"},
	}, edges)

	gw, ok := gg.Gateway("frontend", "backend")
	require.True(t, ok)
	assert.Equal(t, "api", gw)

	gw, ok = gg.Gateway("exposed", "frontend")
	require.True(t, ok)
	assert.Equal(t, "web", gw)
}

func TestLoadCompose(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ComposeFileName), []byte(sampleCompose), 0o644))

	topo, err := LoadCompose(dir)
	require.NoError(t, err)
	assert.Len(t, topo.ServiceNames(), 4)

	_, err = LoadCompose(t.TempDir())
	assert.Error(t, err)

	_, err = ParseCompose([]byte("services: {}"))
	assert.Error(t, err)
}
