package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"strings"

	gnomecache "github.com/wolfeidau/gnome-cache"
	"github.com/wolfeidau/gnome-cache/filter"
	"github.com/wolfeidau/gnome-cache/placeholder"
	"github.com/wolfeidau/gnome-cache/telemetry"
)

// photoQuality matches the quality photos are cached with.
const photoQuality = 85

// gnomeView is the JSON form of a gnome, with its derived fields.
type gnomeView struct {
	gnomecache.Gnome
	Gender      string `json:"gender"`
	FriendCount int    `json:"friend_count"`
}

func viewsOf(gs []gnomecache.Gnome) []gnomeView {
	out := make([]gnomeView, len(gs))
	for i, g := range gs {
		out[i] = viewOf(g)
	}
	return out
}

func viewOf(g gnomecache.Gnome) gnomeView {
	return gnomeView{Gnome: g, Gender: g.Gender(), FriendCount: g.FriendCount()}
}

// handleList serves the population sorted by name, narrowed by ?q=.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "list")

	pop, err := s.gnomes.GetPopulation(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(filter.Search(filter.SortByName(pop), r.URL.Query().Get("q"))))
}

// handleFilter applies range and set criteria. Ranges not given default to
// the span of the current population.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "filter")

	pop, err := s.gnomes.GetPopulation(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(pop) == 0 {
		writeJSON(w, http.StatusOK, []gnomeView{})
		return
	}

	facets, err := filter.Derive(pop)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	criteria, err := criteriaFromQuery(r, filter.DefaultCriteria(facets))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(filter.Filter(pop, criteria)))
}

func criteriaFromQuery(r *http.Request, c filter.Criteria) (filter.Criteria, error) {
	q := r.URL.Query()
	ranges := []struct {
		param string
		dst   *filter.Range
	}{
		{"age", &c.Age},
		{"height", &c.Height},
		{"weight", &c.Weight},
		{"friends", &c.Friends},
	}
	for _, rg := range ranges {
		v := q.Get(rg.param)
		if v == "" {
			continue
		}
		parsed, err := filter.ParseRange(v)
		if err != nil {
			return c, err
		}
		*rg.dst = parsed
	}
	c.HairColors = splitParam(q["hair"])
	c.Professions = splitParam(q["profession"])
	return c, nil
}

// splitParam accepts repeated parameters and comma separated values.
func splitParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (s *Server) handleFacets(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "facets")

	pop, err := s.gnomes.GetPopulation(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	facets, err := filter.Derive(pop)
	if errors.Is(err, filter.ErrEmpty) {
		facets = filter.Facets{HairColors: []string{}, Professions: []string{}}
	}
	writeJSON(w, http.StatusOK, facets)
}

func (s *Server) handleGnome(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "gnome")

	g, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(g))
}

// handlePhoto serves the gnome's photo as JPEG, or a PNG placeholder when
// the photo cannot be produced.
func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "photo")

	g, ok := s.lookup(w, r)
	if !ok {
		return
	}

	img, err := s.photos.GetPhoto(r.Context(), g.ThumbnailURL)
	if err != nil {
		kind := gnomecache.Kind(err)
		s.logger.Warn("serving placeholder", "name", g.Name, "src", g.ThumbnailURL, "error", err, "kind", kind)
		telemetry.RecordPlaceholder(r.Context(), kind)
		writeImage(w, placeholder.Generate(g.Name), true)
		return
	}
	writeImage(w, img, false)
}

// lookup resolves {name}, writing a 404 or error response when it fails.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (gnomecache.Gnome, bool) {
	name := r.PathValue("name")
	g, ok, err := s.gnomes.GetByName(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return g, false
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "gnome not found", "name": name})
		return g, false
	}
	return g, true
}

func writeImage(w http.ResponseWriter, img image.Image, isPlaceholder bool) {
	var buf bytes.Buffer
	contentType := "image/jpeg"
	var err error
	if isPlaceholder {
		contentType = "image/png"
		w.Header().Set("X-Placeholder", "true")
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: photoQuality})
	}
	if err != nil {
		http.Error(w, "encoding image", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	if !isPlaceholder {
		w.Header().Set("Cache-Control", "public, max-age=900")
	}
	_, _ = w.Write(buf.Bytes())
}

// writeError maps an error kind to a status code.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, gnomecache.ErrTransport), errors.Is(err, gnomecache.ErrParse):
		status = http.StatusBadGateway
	case errors.Is(err, gnomecache.ErrNotFound):
		status = http.StatusNotFound
	}
	s.logger.Error("request failed", "path", r.URL.Path, "error", err, "kind", gnomecache.Kind(err))
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": gnomecache.Kind(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
