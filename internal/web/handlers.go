package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"image-compressor-go/internal/session"
	"image-compressor-go/internal/share"

	"github.com/gorilla/mux"
)

// uploadField is the multipart field carrying the image.
const uploadField = "file"

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

// withSession resolves the {sid} route variable before calling next.
func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(mux.Vars(r)["sid"])
		if err != nil {
			s.writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		next(w, r, sess)
	}
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNoFile), errors.Is(err, session.ErrNoSelection):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, session.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, share.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	s.writeJSONStatus(w, http.StatusCreated, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"id":    sess.ID(),
			"state": sess.Snapshot(),
		},
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    sess.Snapshot(),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Delete(mux.Vars(r)["sid"]) {
		s.writeError(w, session.ErrSessionNotFound.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Session closed",
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	maxSize := s.cfg.Upload.MaxSize
	r.Body = http.MaxBytesReader(w, r.Body, 4*maxSize)

	up, err := readUpload(r, maxSize)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeError(w, "Invalid multipart request: "+err.Error(), http.StatusBadRequest)
		return
	}

	sel, err := sess.Select(up)
	if err != nil {
		s.writeError(w, err.Error(), statusFor(err))
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Image selected",
		Data:    sel,
	})
}

// readUpload keeps at most maxSize+1 bytes of the file part and counts the
// remainder into Upload.Size.
func readUpload(r *http.Request, maxSize int64) (session.Upload, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return session.Upload{}, err
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return session.Upload{}, nil
		}
		if err != nil {
			return session.Upload{}, err
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			part.Close()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, maxSize+1))
		if err != nil {
			return session.Upload{}, err
		}
		rest, err := io.Copy(io.Discard, part)
		if err != nil {
			return session.Upload{}, err
		}
		part.Close()

		return session.Upload{
			Name:         part.FileName(),
			DeclaredType: part.Header.Get("Content-Type"),
			Size:         int64(len(data)) + rest,
			Data:         data,
		}, nil
	}
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req QualityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    map[string]int{"quality": sess.SetQuality(req.Quality)},
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	// A started compression runs to completion even if the client goes away.
	entry, err := sess.Compress(context.WithoutCancel(r.Context()))
	if err != nil {
		s.writeError(w, err.Error(), statusFor(err))
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Image compressed! Size reduced by %.1f%%", entry.Reduction),
		Data:    entry,
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	b, err := sess.Preview()
	if err != nil {
		s.writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", b.MIMEType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
	_, _ = w.Write(b.Data)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	n := sess.ClearHistory()
	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "History cleared",
		Data:    map[string]int{"cleared": n},
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	err := sess.Download(mux.Vars(r)["id"], func(name, mimeType string, data []byte) error {
		w.Header().Set("Content-Type", mimeType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, err := w.Write(data)
		return err
	})
	if errors.Is(err, session.ErrEntryNotFound) {
		s.writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.WithError(err).Warn("Download interrupted")
	}
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	res, err := sess.Share(r.Context(), mux.Vars(r)["id"])
	switch {
	case err == nil:
		s.writeJSON(w, APIResponse{
			Success: true,
			Message: "Image shared",
			Data:    res,
		})
	case share.IsCanceled(err):
		s.writeJSON(w, APIResponse{
			Success: false,
			Message: "Sharing canceled",
		})
	default:
		s.writeError(w, err.Error(), statusFor(err))
	}
}

func (s *Server) handleAdBlock(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req AdBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    map[string]bool{"notice_shown": sess.ReportAdBlock(req.Blocked)},
	})
}

func (s *Server) handlePrivacy(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req PrivacyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess.SetPrivacy(req.Open)
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    map[string]bool{"open": req.Open},
	})
}
