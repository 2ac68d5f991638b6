package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/searchlab/studyflow/internal/api"
	"github.com/searchlab/studyflow/internal/db"
	"github.com/searchlab/studyflow/internal/middleware"
	"github.com/searchlab/studyflow/internal/services"
	"github.com/searchlab/studyflow/internal/study"
	"github.com/searchlab/studyflow/internal/utils"
)

func main() {
	addr := utils.SafeEnv("STUDYFLOW_ADDR", ":8080")
	commit := os.Getenv("STUDYFLOW_COMMIT")
	buildTime := os.Getenv("STUDYFLOW_BUILD_TIME")

	def, err := study.Load(os.Getenv("STUDYFLOW_STUDY_FILE"))
	if err != nil {
		log.Fatalf("load study definition: %v", err)
	}

	store := openStore()
	httpClient := &http.Client{Timeout: 30 * time.Second}

	writer := services.NewRecordClient(
		httpClient,
		os.Getenv("AIRTABLE_BASE_URL"),
		os.Getenv("AIRTABLE_BASE_ID"),
		os.Getenv("AIRTABLE_API_KEY"),
	)
	search := services.NewCSEClient(
		httpClient,
		os.Getenv("GOOGLE_CSE_BASE_URL"),
		os.Getenv("GOOGLE_CSE_API_KEY"),
		os.Getenv("GOOGLE_CSE_CX"),
	)

	var gen services.TextGenerator = services.NewDisabledGenerator()
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		g, err := services.NewGeminiGenerator(context.Background(), key, os.Getenv("GEMINI_MODEL"))
		if err != nil {
			log.Fatalf("genai client: %v", err)
		}
		gen = g
	} else {
		log.Printf("GEMINI_API_KEY not set; genai condition disabled")
	}

	mux := http.NewServeMux()
	api.NewRouter(store, def, writer, search, gen, middleware.SignToken).Register(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "StudyFlow API",
			"study":      def.Title,
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	// Frontend serving strategy (priority):
	// 1) Static files if STUDYFLOW_STATIC_DIR is set (fullstack image)
	// 2) Dev proxy if STUDYFLOW_DEV_FRONTEND_URL is set (proxy / to the dev server)
	if staticDir := os.Getenv("STUDYFLOW_STATIC_DIR"); staticDir != "" {
		fs := http.FileServer(http.Dir(staticDir))
		mux.Handle("/", fs)
	} else if devURL := os.Getenv("STUDYFLOW_DEV_FRONTEND_URL"); devURL != "" {
		if u, err := url.Parse(devURL); err == nil {
			rp := httputil.NewSingleHostReverseProxy(u)
			// Ensure no-store headers also apply to proxied responses
			rp.ModifyResponse = func(res *http.Response) error {
				res.Header.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
				res.Header.Set("Pragma", "no-cache")
				res.Header.Set("Expires", "0")
				return nil
			}
			mux.Handle("/", rp)
		} else {
			log.Printf("invalid STUDYFLOW_DEV_FRONTEND_URL=%q: %v", devURL, err)
		}
	}

	handler := middleware.NoStore(middleware.SecureHeaders(middleware.CORS(middleware.WithAuth(mux))))

	log.Printf("StudyFlow server listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// openStore picks SQLite when a path is configured, the in-memory store
// otherwise. The memory store loses all state on restart and is meant for
// development.
func openStore() api.Store {
	path := os.Getenv("STUDYFLOW_SQLITE_PATH")
	if path == "" {
		log.Printf("STUDYFLOW_SQLITE_PATH not set; using in-memory store")
		return api.NewMemoryStore()
	}
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	if err := db.RunMigrations(conn, os.Getenv("STUDYFLOW_MIGRATIONS_DIR")); err != nil {
		log.Fatalf("run migrations: %v", err)
	}
	store, err := db.NewStore(conn)
	if err != nil {
		log.Fatalf("init sqlite store: %v", err)
	}
	log.Printf("using sqlite store at %s", path)
	return store
}
