package orchestrator_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soundcheck-labs/backline/orchestrator"
	"github.com/soundcheck-labs/backline/pool"
)

type staticDoer struct{}

func (staticDoer) Do(*http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: 200,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(`{"name":"Weekly Mix"}`)),
	}, nil
}

func ExampleClient_Do() {
	client := orchestrator.New(
		orchestrator.WithPool(pool.New(pool.Config{Transport: staticDoer{}})),
	)
	defer client.Close()

	req := pool.NewRequest(http.MethodGet, "https://api.example.com/v1/playlists/weekly")
	resp, err := client.Do(context.Background(), req, orchestrator.Options{
		Identity:  "svc-playlists",
		CacheKey:  "playlists/weekly",
		CacheName: orchestrator.CacheCatalog,
		CacheTTL:  5 * time.Minute,
	})
	if err != nil {
		fmt.Println("request failed:", err)
		return
	}

	var playlist struct {
		Name string `json:"name"`
	}
	resp.DecodeJSON(&playlist)
	fmt.Println(resp.StatusCode, playlist.Name, resp.FromCache)

	// An identical request inside the dedup window is served without a
	// second network call.
	again, _ := client.Do(context.Background(), req, orchestrator.Options{
		CacheKey:  "playlists/weekly",
		CacheName: orchestrator.CacheCatalog,
	})
	fmt.Println(again.StatusCode, again.FromCache)
	// Output:
	// 200 Weekly Mix false
	// 200 true
}
