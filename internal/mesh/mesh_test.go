package mesh

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphgate/graphgate/internal/federation"
	"github.com/graphgate/graphgate/internal/openapi"
	"github.com/graphgate/graphgate/internal/resttp"
)

const orderDocTemplate = `{
  "openapi": "3.0.3",
  "info": {"title": "Order API", "version": "1.0.0"},
  "paths": {
    "/orders/{id}": {
      "get": {
        "parameters": [
          {"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}
        ],
        "responses": {
          "200": {
            "description": "ok",
            "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Order"}}}
          }
        }
      }
    }%s
  },
  "components": {
    "schemas": {
      "Order": {
        "type": "object",
        "properties": {"id": {"type": "string"}, "total": {"type": "number"}}
      }
    }
  }
}`

const extraPath = `,
    "/orders": {
      "get": {
        "responses": {
          "200": {
            "description": "ok",
            "content": {"application/json": {"schema": {"type": "array", "items": {"$ref": "#/components/schemas/Order"}}}}
          }
        }
      }
    }`

func descriptor(t *testing.T, name, baseURL, docJSON string) federation.ServiceDescriptor {
	t.Helper()
	doc, err := openapi.Parse([]byte(docJSON))
	require.NoError(t, err)
	return federation.ServiceDescriptor{
		Name:        name,
		BaseURL:     baseURL,
		HasOpenAPI:  true,
		Document:    doc.Spec,
		Fingerprint: doc.Fingerprint,
		Ready:       true,
	}
}

func orderDescriptor(t *testing.T) federation.ServiceDescriptor {
	return descriptor(t, "order-api", "http://orders.internal:8080", fmt.Sprintf(orderDocTemplate, ""))
}

func newTestManager() *Manager {
	return NewManager(resttp.New())
}

func TestUpdateConfigurationPublishes(t *testing.T) {
	m := newTestManager()
	require.Nil(t, m.Snapshot())
	assert.Equal(t, StatusEmpty, m.GetHealthStatus().Status)

	rebuilt := m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{orderDescriptor(t)})
	require.True(t, rebuilt)

	snap := m.Snapshot()
	require.NotNil(t, snap)
	assert.False(t, snap.Config.Fallback)
	assert.Equal(t, []string{"order-api"}, snap.Config.Services)
	assert.Contains(t, snap.Config.Mappings, "OrderApiGetOrders")
	require.NotNil(t, snap.Config.Schema.GetQueryType())
	assert.NotNil(t, snap.Config.Schema.GetQueryType().Field("OrderApiGetOrders"))
	assert.NotNil(t, snap.Config.Schema.Types["OrderApiOrder"])

	h := m.GetHealthStatus()
	assert.Equal(t, StatusReady, h.Status)
	assert.True(t, h.MeshConfigured)
	assert.Equal(t, 1, h.ServicesCount)

	outcome := m.LastBuildOutcome()
	require.NotNil(t, outcome)
	assert.Equal(t, BuildSuccess, outcome.Result)
}

func TestUpdateConfigurationUnchangedSetSkipsRebuild(t *testing.T) {
	m := newTestManager()
	require.True(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{orderDescriptor(t)}))
	first := m.Snapshot()

	// Same name, URL and document content: identity is structural, so a
	// second discovery cycle must not rebuild.
	require.False(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{orderDescriptor(t)}))
	assert.Same(t, first, m.Snapshot())
}

func TestUpdateConfigurationDocumentChangeRebuilds(t *testing.T) {
	m := newTestManager()
	require.True(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{orderDescriptor(t)}))
	require.NotContains(t, m.GetSchema().Mappings, "OrderApiGetOrdersById")

	grown := descriptor(t, "order-api", "http://orders.internal:8080", fmt.Sprintf(orderDocTemplate, extraPath))
	require.True(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{grown}))

	cfg := m.GetSchema()
	// Both operations now hang off the new document; the collision between
	// /orders and /orders/{id} resolves with the parameter suffix.
	assert.Contains(t, cfg.Mappings, "OrderApiGetOrders")
	assert.Contains(t, cfg.Mappings, "OrderApiGetOrdersById")
}

func TestUpdateConfigurationBaseURLChangeRebuilds(t *testing.T) {
	m := newTestManager()
	require.True(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{orderDescriptor(t)}))

	moved := descriptor(t, "order-api", "http://orders-v2.internal:8080", fmt.Sprintf(orderDocTemplate, ""))
	require.True(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{moved}))
	assert.Equal(t, "http://orders-v2.internal:8080", m.GetSchema().Mappings["OrderApiGetOrders"].BaseURL)
}

func TestUpdateConfigurationNoUsableServices(t *testing.T) {
	m := newTestManager()
	require.True(t, m.UpdateConfiguration(context.Background(), nil))

	snap := m.Snapshot()
	require.NotNil(t, snap)
	assert.True(t, snap.Config.Fallback)
	assert.Empty(t, snap.Config.Services)

	h := m.GetHealthStatus()
	assert.Equal(t, StatusDegraded, h.Status)
	assert.False(t, h.MeshConfigured)
	assert.Equal(t, 0, h.ServicesCount)

	// The fallback schema still answers status queries.
	res := graphql.Do(graphql.Params{
		Schema:        *snap.Executable,
		RequestString: `{ status discoveredServices }`,
	})
	require.Empty(t, res.Errors)
	assert.Equal(t, "degraded", res.Data.(map[string]any)["status"])

	// Repeating an empty discovery while already on fallback is a no-op.
	require.False(t, m.UpdateConfiguration(context.Background(), nil))
}

func TestUpdateConfigurationSkipsServicesWithoutDocuments(t *testing.T) {
	m := newTestManager()
	noDoc := federation.ServiceDescriptor{Name: "shadow", BaseURL: "http://shadow:1", Ready: true}
	require.True(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{orderDescriptor(t), noDoc}))
	assert.Equal(t, []string{"order-api"}, m.GetSchema().Services)
}

// A service whose name yields a leading-digit prefix produces GraphQL
// names the grammar rejects, which forces the merge to fail.
func badNameDescriptor(t *testing.T) federation.ServiceDescriptor {
	return descriptor(t, "1-api", "http://one.internal:8080", fmt.Sprintf(orderDocTemplate, ""))
}

func TestFirstBuildFailurePublishesFallback(t *testing.T) {
	m := newTestManager()
	require.True(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{badNameDescriptor(t)}))

	snap := m.Snapshot()
	require.NotNil(t, snap)
	assert.True(t, snap.Config.Fallback)
	assert.Equal(t, StatusDegraded, m.GetHealthStatus().Status)

	outcome := m.LastBuildOutcome()
	require.NotNil(t, outcome)
	assert.Equal(t, BuildFailure, outcome.Result)
	assert.NotEmpty(t, outcome.Error)
}

func TestBuildFailureKeepsPriorConfiguration(t *testing.T) {
	m := newTestManager()
	require.True(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{orderDescriptor(t)}))
	good := m.Snapshot()
	require.False(t, good.Config.Fallback)

	require.True(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{badNameDescriptor(t)}))

	// The failed cycle must not dislodge the last good schema.
	assert.Same(t, good, m.Snapshot())
	assert.Equal(t, StatusReady, m.GetHealthStatus().Status)
	assert.Equal(t, BuildFailure, m.LastBuildOutcome().Result)

	// And the tracked set keeps its pre-failure identity, so re-offering
	// the good service is a no-op rather than a rebuild.
	require.False(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{orderDescriptor(t)}))
}

func TestRebuildForcesWithoutChange(t *testing.T) {
	m := newTestManager()
	require.True(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{orderDescriptor(t)}))
	first := m.Snapshot()

	m.Rebuild(context.Background())
	second := m.Snapshot()
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.Equal(t, first.Config.Services, second.Config.Services)
}

func TestRebuildWithNothingTrackedPublishesFallback(t *testing.T) {
	m := newTestManager()
	m.Rebuild(context.Background())
	require.NotNil(t, m.Snapshot())
	assert.True(t, m.Snapshot().Config.Fallback)
}

func TestGetStats(t *testing.T) {
	m := newTestManager()
	stats := m.GetStats()
	assert.Zero(t, stats.ServicesCount)
	assert.NotNil(t, stats.Services)

	require.True(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{orderDescriptor(t)}))
	stats = m.GetStats()
	assert.Equal(t, 1, stats.ServicesCount)
	assert.Equal(t, []string{"order-api"}, stats.Services)
	assert.False(t, stats.LastBuild.IsZero())
}

func TestMergeDisjointPrefixesNoCollision(t *testing.T) {
	m := newTestManager()
	// Two services exposing identical paths and component names; the
	// per-service prefix keeps every merged name distinct.
	services := []federation.ServiceDescriptor{
		descriptor(t, "order-api", "http://orders:8080", fmt.Sprintf(orderDocTemplate, "")),
		descriptor(t, "user-api", "http://users:8080", fmt.Sprintf(orderDocTemplate, "")),
	}
	require.True(t, m.UpdateConfiguration(context.Background(), services))

	cfg := m.GetSchema()
	assert.Equal(t, []string{"order-api", "user-api"}, cfg.ServiceNames())
	assert.Contains(t, cfg.Mappings, "OrderApiGetOrders")
	assert.Contains(t, cfg.Mappings, "UserApiGetOrders")
	assert.NotNil(t, cfg.Schema.Types["OrderApiOrder"])
	assert.NotNil(t, cfg.Schema.Types["UserApiOrder"])
	assert.Equal(t, "http://orders:8080", cfg.Mappings["OrderApiGetOrders"].BaseURL)
	assert.Equal(t, "http://users:8080", cfg.Mappings["UserApiGetOrders"].BaseURL)
}

func TestResolutionFailureLeavesMeshStateUnchanged(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	defer backend.Close()

	m := NewManager(resttp.New(resttp.WithClient(backend.Client())))
	svc := descriptor(t, "order-api", backend.URL, fmt.Sprintf(orderDocTemplate, ""))
	require.True(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{svc}))
	snap := m.Snapshot()

	res := graphql.Do(graphql.Params{
		Schema:        *snap.Executable,
		RequestString: `{ OrderApiGetOrders(id: "42") { id } }`,
		Context:       context.Background(),
	})
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0].Message, "service=order-api")
	assert.Contains(t, res.Errors[0].Message, "method=GET")
	assert.Contains(t, res.Errors[0].Message, "path=/orders/42")

	// A runtime failure is the query's problem, never the mesh's: the
	// active snapshot and the tracked set stay exactly as they were.
	assert.Same(t, snap, m.Snapshot())
	assert.Equal(t, StatusReady, m.GetHealthStatus().Status)
	require.False(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{svc}))
}

func TestConcurrentUpdatesAndReaders(t *testing.T) {
	m := newTestManager()

	setA := []federation.ServiceDescriptor{orderDescriptor(t)}
	setB := []federation.ServiceDescriptor{
		orderDescriptor(t),
		descriptor(t, "user-api", "http://users.internal:8080", fmt.Sprintf(orderDocTemplate, "")),
	}
	require.True(t, m.UpdateConfiguration(context.Background(), setA))

	stop := make(chan struct{})
	var readers, writers sync.WaitGroup

	// Readers hammer the published views. Every snapshot they observe must
	// be one of the two complete configurations, never a mix: the service
	// list, the mapping table and the schema always agree.
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := m.Snapshot()
				if snap == nil || snap.Config == nil || snap.Executable == nil {
					t.Error("observed an incomplete snapshot")
					return
				}
				cfg := snap.Config
				if cfg.Fallback {
					t.Error("observed a fallback configuration during ready-to-ready swaps")
					return
				}
				if _, ok := cfg.Mappings["OrderApiGetOrders"]; !ok {
					t.Error("snapshot is missing the order-api field")
					return
				}
				_, hasUser := cfg.Mappings["UserApiGetOrders"]
				switch len(cfg.Services) {
				case 1:
					if hasUser || cfg.Schema.Types["UserApiOrder"] != nil {
						t.Error("one-service snapshot carries user-api parts")
						return
					}
				case 2:
					if !hasUser || cfg.Schema.Types["UserApiOrder"] == nil {
						t.Error("two-service snapshot is missing user-api parts")
						return
					}
				default:
					t.Errorf("snapshot has %d services", len(cfg.Services))
					return
				}
				if h := m.GetHealthStatus(); h.Status != StatusReady {
					t.Errorf("health reported %s mid-swap", h.Status)
					return
				}
				if st := m.GetStats(); st.ServicesCount != len(st.Services) {
					t.Error("stats disagree with themselves")
					return
				}
			}
		}()
	}

	// Writers alternate the service set; overlapping calls serialize on
	// the build lock.
	for i := 0; i < 2; i++ {
		writers.Add(1)
		go func(offset int) {
			defer writers.Done()
			for n := 0; n < 20; n++ {
				if (n+offset)%2 == 0 {
					m.UpdateConfiguration(context.Background(), setA)
				} else {
					m.UpdateConfiguration(context.Background(), setB)
				}
			}
		}(i)
	}

	writers.Wait()
	close(stop)
	readers.Wait()
}

func TestMergedSchemaHasMutationOnlyWhenNeeded(t *testing.T) {
	m := newTestManager()
	require.True(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{orderDescriptor(t)}))
	assert.Nil(t, m.GetSchema().Schema.GetMutationType())

	withPost := descriptor(t, "order-api", "http://orders.internal:8080", `{
	  "openapi": "3.0.3",
	  "info": {"title": "Order API", "version": "1.0.0"},
	  "paths": {
	    "/orders": {
	      "post": {
	        "requestBody": {"content": {"application/json": {"schema": {"type": "object"}}}},
	        "responses": {"201": {"description": "created"}}
	      }
	    }
	  }
	}`)
	require.True(t, m.UpdateConfiguration(context.Background(), []federation.ServiceDescriptor{withPost}))
	mut := m.GetSchema().Schema.GetMutationType()
	require.NotNil(t, mut)
	assert.NotNil(t, mut.Field("OrderApiCreateOrders"))
}
