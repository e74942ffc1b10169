package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/pulsejet/cerium-engine/config"
	"github.com/pulsejet/cerium-engine/controllers"
	"github.com/pulsejet/cerium-engine/schema"
	"github.com/pulsejet/cerium-engine/store"
)

// spaHandler serves a single page app from staticPath, falling back to the
// index file for paths that do not exist on disk.
type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// get the absolute path to prevent directory traversal
	path, err := filepath.Abs(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	path = filepath.Join(h.staticPath, path)

	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
}

func openStore(ctx context.Context, cfg config.Config) store.Store {
	if cfg.Store == "mongo" {
		st, err := store.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.WithError(err).Fatal("Error connecting to database")
		}
		log.WithField("database", cfg.MongoDatabase).Info("Using mongo store")
		return st
	}
	log.Info("Using in-memory store")
	return store.NewMemoryStore()
}

// seedForms stores every schema found in dir, keeping their ids.
func seedForms(ctx context.Context, st store.Store, dir string) {
	forms, err := schema.LoadDir(dir)
	if err != nil {
		log.WithError(err).WithField("dir", dir).Fatal("Error loading forms")
	}
	for _, f := range forms {
		if _, err := st.PutForm(ctx, f); err != nil {
			log.WithError(err).WithField("form", f.ID).Error("Error seeding form")
			continue
		}
		log.WithFields(log.Fields{"form": f.ID, "slug": f.Slug}).Info("Seeded form")
	}
}

func main() {
	// Load configuration
	cfg := config.Load()
	config.Setup(cfg.LogLevel)

	ctx := context.Background()
	st := openStore(ctx, cfg)
	if cfg.FormsDir != "" {
		seedForms(ctx, st, cfg.FormsDir)
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.WithError(err).Fatal("Error creating upload directory")
	}

	// Create new router
	router := mux.NewRouter()
	controllers.New(st, cfg.UploadDir, cfg.JWTKey).Routes(router)

	// Handle SPA
	spa := spaHandler{staticPath: "dist/cerium", indexPath: "index.html"}
	router.PathPrefix("/").Handler(spa)

	log.Info("Started server on port ", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatal(err)
	}
}
