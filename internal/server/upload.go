// Package server implements the file-upload collaborator endpoint. The
// relay core only ever consumes the returned reference; the binary itself
// stays on disk and is served statically.
package server

import (
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// UploadResponse is the reference handed back to the uploader. The client
// attaches it to a subsequent send_message event.
type UploadResponse struct {
	FileURL  string `json:"fileUrl"`
	FileType string `json:"fileType"`
}

// UploadHandler accepts a multipart file, stores it under the configured
// upload directory with a generated name, and responds with its URL and
// MIME-type hint. Any failure is reported to the uploader only; no chat
// event is emitted for a failed upload.
func UploadHandler(w http.ResponseWriter, r *http.Request) {
	cfg := currentConfig()

	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(cfg.MaxUploadSize); err != nil {
		status := http.StatusBadRequest
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSONError(w, status, "could not parse upload form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Printf("Error creating upload directory %q: %v", cfg.UploadDir, err)
		writeJSONError(w, http.StatusInternalServerError, "could not store file")
		return
	}

	// Stored name is generated; only the original extension survives.
	ext := filepath.Ext(filepath.Base(header.Filename))
	name := uuid.NewString() + ext
	path := filepath.Join(cfg.UploadDir, name)

	dst, err := os.Create(path)
	if err != nil {
		log.Printf("Error creating upload file %q: %v", path, err)
		writeJSONError(w, http.StatusInternalServerError, "could not store file")
		return
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, file); err != nil {
		log.Printf("Error writing upload file %q: %v", path, err)
		_ = os.Remove(path)
		writeJSONError(w, http.StatusInternalServerError, "could not store file")
		return
	}

	fileType := header.Header.Get("Content-Type")
	if fileType == "" {
		fileType = mime.TypeByExtension(ext)
	}
	if fileType == "" {
		fileType = "application/octet-stream"
	}

	log.Printf("Stored upload %q (%d bytes, %s)", name, header.Size, fileType)
	writeJSON(w, http.StatusOK, UploadResponse{
		FileURL:  "/uploads/" + name,
		FileType: fileType,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
