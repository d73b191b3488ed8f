package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/annel0/voxel-mesher/internal/api"
	"github.com/annel0/voxel-mesher/internal/mesher"
	"github.com/hashicorp/go-cleanhttp"
)

const defaultServerAddr = "http://localhost:3000"

func main() {
	var (
		serverAddr = flag.String("server", defaultServerAddr, "REST API address")
		command    = flag.String("cmd", "atlas", "Command: atlas, chunk, invalidate, rebuild, health")
		coords     = flag.String("chunk", "0,0,0", "Chunk coordinates x,y,z")
		timeout    = flag.Duration("timeout", 30*time.Second, "Request timeout")
		raw        = flag.Bool("raw", false, "Print raw JSON response")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := &apiClient{
		base: strings.TrimRight(*serverAddr, "/"),
		http: cleanhttp.DefaultPooledClient(),
		raw:  *raw,
	}

	var err error
	switch *command {
	case "atlas":
		err = client.showAtlas(ctx)
	case "rebuild":
		err = client.rebuildAtlas(ctx)
	case "chunk":
		err = client.showChunk(ctx, *coords)
	case "invalidate":
		err = client.invalidateChunk(ctx, *coords)
	case "health":
		err = client.showHealth(ctx)
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: atlas, chunk, invalidate, rebuild, health")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

type apiClient struct {
	base string
	http *http.Client
	raw  bool
}

// do выполняет запрос и декодирует JSON ответ в out (если out != nil)
func (c *apiClient) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if c.raw && len(body) > 0 {
		fmt.Println(string(body))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *apiClient) showAtlas(ctx context.Context) error {
	var resp api.AtlasResponse
	if err := c.do(ctx, http.MethodGet, "/api/textures/atlas", &resp); err != nil {
		return err
	}
	if c.raw {
		return nil
	}
	printAtlas(&resp)
	return nil
}

func (c *apiClient) rebuildAtlas(ctx context.Context) error {
	fmt.Println("🔨 Rebuilding texture atlas...")
	var resp api.AtlasResponse
	if err := c.do(ctx, http.MethodPost, "/api/textures/atlas/rebuild", &resp); err != nil {
		return err
	}
	if c.raw {
		return nil
	}
	printAtlas(&resp)
	return nil
}

func (c *apiClient) showChunk(ctx context.Context, coords string) error {
	path, err := chunkPath(coords)
	if err != nil {
		return err
	}

	start := time.Now()
	var mesh mesher.MergedMesh
	if err := c.do(ctx, http.MethodGet, path, &mesh); err != nil {
		return err
	}
	if c.raw {
		return nil
	}

	fmt.Printf("🧊 Chunk %s (%v)\n", coords, time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Faces:    %d\n", mesh.FaceCount())
	fmt.Printf("  Vertices: %d\n", mesh.VertexCount())
	fmt.Printf("  Indices:  %d\n", len(mesh.Indices))
	return nil
}

func (c *apiClient) invalidateChunk(ctx context.Context, coords string) error {
	path, err := chunkPath(coords)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPost, path+"/invalidate", nil); err != nil {
		return err
	}
	fmt.Printf("✅ Chunk %s invalidated\n", coords)
	return nil
}

func (c *apiClient) showHealth(ctx context.Context) error {
	var resp map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/health", &resp); err != nil {
		return err
	}
	if c.raw {
		return nil
	}

	keys := make([]string, 0, len(resp))
	for k := range resp {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println("💚 Health")
	for _, k := range keys {
		fmt.Printf("  %-12s %v\n", k+":", resp[k])
	}
	return nil
}

func printAtlas(resp *api.AtlasResponse) {
	fmt.Printf("🖼  Atlas %s (%dx%d)\n", resp.Atlas, resp.Width, resp.Height)

	names := make([]string, 0, len(resp.Textures))
	for name := range resp.Textures {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := resp.Textures[name]
		fmt.Printf("  %-20s x=%-5d y=%-5d %dx%d\n", name, r.X, r.Y, r.Width, r.Height)
	}
	fmt.Printf("\n📊 Total textures: %d\n", len(names))
}

// chunkPath превращает "x,y,z" в путь API чанка
func chunkPath(coords string) (string, error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid chunk coordinates %q, expected x,y,z", coords)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return "/api/chunk/" + strings.Join(parts, "/"), nil
}
