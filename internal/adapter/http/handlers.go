package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/pipeline"
	"github.com/couchcryptid/storm-vision-service/internal/render"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func (s *Server) handleAnalyze(c *gin.Context) {
	enhance, err := boolQuery(c, "enhance", false)
	if err != nil {
		s.writeError(c, err)
		return
	}
	img, err := s.readUpload(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	snap, err := s.svc.Analyze(c.Request.Context(), img, enhance)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap.Analysis)
}

// readUpload accepts either a multipart form with an "image" file or a raw
// image request body.
func (s *Server) readUpload(c *gin.Context) (domain.SourceImage, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)

	var (
		data []byte
		name string
		err  error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		var fh *multipart.FileHeader
		fh, err = c.FormFile("image")
		if err == nil {
			name = fh.Filename
			data, err = readFormFile(fh)
		}
	} else {
		name = c.Query("filename")
		data, err = io.ReadAll(c.Request.Body)
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return domain.SourceImage{}, badRequest("image exceeds %d bytes", s.maxUploadBytes)
	case errors.Is(err, http.ErrMissingFile):
		return domain.SourceImage{}, badRequest("multipart field \"image\" is required")
	case err != nil:
		return domain.SourceImage{}, badRequest("read upload: %v", err)
	case len(data) == 0:
		return domain.SourceImage{}, badRequest("image is required")
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return domain.SourceImage{}, badRequest("unsupported content type %s", mime)
	}
	return domain.SourceImage{Data: data, MIMEType: mime, FileName: name}, nil
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleLatest(c *gin.Context) {
	snap, err := s.svc.Latest()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap.Analysis)
}

func (s *Server) handleImage(c *gin.Context) {
	snap, err := s.svc.Latest()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, snap.Image.MIMEType, snap.Image.Data)
}

func (s *Server) handleEnhanced(c *gin.Context) {
	snap, err := s.svc.Latest()
	if err != nil {
		s.writeError(c, err)
		return
	}
	if snap.Enhanced == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no enhanced image for this analysis"})
		return
	}
	c.Data(http.StatusOK, snap.Enhanced.MIMEType, snap.Enhanced.Data)
}

func (s *Server) handleTrack(c *gin.Context) {
	hour, err := floatQuery(c, "hour")
	if err != nil {
		s.writeError(c, err)
		return
	}
	ts, err := s.svc.Track(hour)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ts)
}

func (s *Server) handleConditions(c *gin.Context) {
	cond, err := s.svc.Conditions(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cond)
}

func (s *Server) handleOverlaySVG(c *gin.Context) {
	opts, err := renderOptions(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.render(c, "image/svg+xml", func(w io.Writer) error {
		return s.svc.RenderSVG(w, opts)
	})
}

func (s *Server) handleOverlayPNG(c *gin.Context) {
	opts, err := renderOptions(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	base, err := boolQuery(c, "base", true)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if base && (opts.Width != 0 || opts.Height != 0) {
		s.writeError(c, badRequest("width and height apply only with base=false; the base image sets the canvas size"))
		return
	}
	s.render(c, "image/png", func(w io.Writer) error {
		return s.svc.RenderOverlayPNG(w, opts, base)
	})
}

func (s *Server) handleWindPNG(c *gin.Context) {
	width, height, err := sizeQuery(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.render(c, "image/png", func(w io.Writer) error {
		return s.svc.RenderWindPNG(w, width, height)
	})
}

func (s *Server) handleCard(c *gin.Context) {
	s.render(c, "image/png", s.svc.RenderCard)
}

func (s *Server) handleMap(c *gin.Context) {
	width, height, err := sizeQuery(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	hour, err := floatQuery(c, "hour")
	if err != nil {
		s.writeError(c, err)
		return
	}
	png, err := s.svc.RenderMap(c.Request.Context(), domain.MapRequest{
		Style:  c.Query("style"),
		Width:  width,
		Height: height,
		Hour:   hour,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) handleExportCSV(c *gin.Context) {
	snap, err := s.svc.Latest()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, snap.Analysis.ID))
	s.render(c, "text/csv; charset=utf-8", s.svc.ExportCSV)
}

// render buffers the output so a failed render still produces a JSON error.
func (s *Server) render(c *gin.Context, contentType string, fn func(io.Writer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// writeError maps an error to a status code and a single-message body.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, render.ErrUnknownLayer), errors.Is(err, render.ErrImageTooLarge):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoAnalysis),
		errors.Is(err, pipeline.ErrNoTrack),
		errors.Is(err, pipeline.ErrNoLocation),
		errors.Is(err, domain.ErrNoCenter):
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrDisabled):
		status = http.StatusServiceUnavailable
	case errors.Is(err, pipeline.ErrUpstream):
		status = http.StatusBadGateway
	}

	msg := err.Error()
	switch status {
	case http.StatusBadGateway:
		msg = "upstream service failed"
	case http.StatusInternalServerError:
		msg = "internal error"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func renderOptions(c *gin.Context) (render.Options, error) {
	width, height, err := sizeQuery(c)
	if err != nil {
		return render.Options{}, err
	}
	hour, err := floatQuery(c, "hour")
	if err != nil {
		return render.Options{}, err
	}
	layers, err := render.ParseLayers(c.Query("layers"))
	if err != nil {
		return render.Options{}, err
	}
	return render.Options{Width: width, Height: height, Hour: hour, Layers: layers}, nil
}

// sizeQuery parses width and height. Both absent means "use the source
// image size" and is reported as 0×0.
func sizeQuery(c *gin.Context) (int, int, error) {
	w, wok := c.GetQuery("width")
	h, hok := c.GetQuery("height")
	if !wok && !hok {
		return 0, 0, nil
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 || width > render.MaxDimension {
		return 0, 0, badRequest("width must be an integer in 1..%d", render.MaxDimension)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 || height > render.MaxDimension {
		return 0, 0, badRequest("height must be an integer in 1..%d", render.MaxDimension)
	}
	return width, height, nil
}

func floatQuery(c *gin.Context, key string) (float64, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, badRequest("%s must be a number", key)
	}
	return v, nil
}

func boolQuery(c *gin.Context, key string, def bool) (bool, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequest("%s must be true or false", key)
	}
	return v, nil
}
