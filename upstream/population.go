package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	gnomecache "github.com/wolfeidau/gnome-cache"
)

// populationRoot is the single key of the census document.
const populationRoot = "Brastlewark"

type populationDocument struct {
	Gnomes *[]gnomeRecord `json:"Brastlewark"`
}

// gnomeRecord bounds the numeric fields to int32 so the truncation in
// gnome never overflows.
type gnomeRecord struct {
	ID          *int     `json:"id" validate:"required,gte=0"`
	Name        string   `json:"name" validate:"required"`
	Thumbnail   string   `json:"thumbnail"`
	Age         int      `json:"age" validate:"gte=0,lte=2147483647"`
	Weight      float64  `json:"weight" validate:"gte=0,lte=2147483647"`
	Height      float64  `json:"height" validate:"gte=0,lte=2147483647"`
	HairColor   string   `json:"hair_color"`
	Professions []string `json:"professions"`
	Friends     []string `json:"friends"`
}

func (r gnomeRecord) gnome() gnomecache.Gnome {
	return gnomecache.Gnome{
		ID:           *r.ID,
		Name:         r.Name,
		ThumbnailURL: r.Thumbnail,
		Age:          r.Age,
		Weight:       int(r.Weight),
		Height:       int(r.Height),
		HairColor:    r.HairColor,
		Professions:  nonNil(r.Professions),
		Friends:      nonNil(r.Friends),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// FetchPopulation downloads and parses the full population. Records keep
// the order they have in the document.
func (c *Client) FetchPopulation(ctx context.Context) ([]gnomecache.Gnome, error) {
	body, err := c.get(ctx, c.sourceURL, "application/json")
	if err != nil {
		return nil, fmt.Errorf("fetching population: %w", err)
	}
	defer func() { _ = body.Close() }()

	var doc populationDocument
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return nil, gnomecache.Errorf(gnomecache.ErrParse, "decoding population: %w", err)
	}
	if doc.Gnomes == nil {
		return nil, gnomecache.Errorf(gnomecache.ErrParse, "population document has no %q key", populationRoot)
	}

	gnomes := make([]gnomecache.Gnome, 0, len(*doc.Gnomes))
	for i, rec := range *doc.Gnomes {
		if err := c.validate.Struct(rec); err != nil {
			return nil, gnomecache.Errorf(gnomecache.ErrParse, "record %d: %s", i, describeValidation(err))
		}
		gnomes = append(gnomes, rec.gnome())
	}

	c.logger.Debug("fetched population", "count", len(gnomes))
	return gnomes, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("field %s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("field %s failed %s", fe.Field(), fe.Tag())
}
