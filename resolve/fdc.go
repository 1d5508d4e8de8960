package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"voicelog"
	"voicelog/action"
)

// FDCClient implements voicelog.FoodSource against a FoodData Central style
// HTTP API.
type FDCClient struct {
	endpoint   string
	apiKey     string
	httpClient voicelog.HTTPClient
}

type FDCClientOpts struct {
	BaseEndpoint string
	APIKey       string
	HTTPClient   voicelog.HTTPClient
}

func NewFDCClient(opts FDCClientOpts) (*FDCClient, error) {
	if opts.BaseEndpoint == "" {
		return nil, fmt.Errorf("invalid base endpoint")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &FDCClient{
		endpoint:   opts.BaseEndpoint,
		apiKey:     opts.APIKey,
		httpClient: hc,
	}, nil
}

type wireSearchFood struct {
	FDCID       int64   `json:"fdcId"`
	Description string  `json:"description"`
	DataType    string  `json:"dataType"`
	BrandOwner  string  `json:"brandOwner"`
	Score       float64 `json:"score"`
}

type wireSearchResponse struct {
	Foods []wireSearchFood `json:"foods"`
}

type wireNutrient struct {
	Nutrient struct {
		Number string `json:"number"`
		Name   string `json:"name"`
	} `json:"nutrient"`
	Amount float64 `json:"amount"`
}

type wireFoodDetail struct {
	FDCID           int64          `json:"fdcId"`
	Description     string         `json:"description"`
	DataType        string         `json:"dataType"`
	ServingSize     float64        `json:"servingSize"`
	ServingSizeUnit string         `json:"servingSizeUnit"`
	FoodNutrients   []wireNutrient `json:"foodNutrients"`
}

// Search queries the ranked full-text endpoint.
func (c *FDCClient) Search(ctx context.Context, query string, limit int) ([]action.Candidate, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("pageSize", strconv.Itoa(limit))
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/foods/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("FOOD_CLIENT: %s: %s", resp.Status, string(body))
	}

	var wr wireSearchResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, fmt.Errorf("FOOD_CLIENT: failed to decode search response: %w", err)
	}

	out := make([]action.Candidate, 0, len(wr.Foods))
	for _, f := range wr.Foods {
		out = append(out, action.Candidate{
			ExternalID:  strconv.FormatInt(f.FDCID, 10),
			Description: f.Description,
			DataType:    f.DataType,
			BrandOwner:  f.BrandOwner,
			RankScore:   f.Score,
		})
	}
	slog.Info("FOOD_CLIENT: Search done", "query", query, "candidates", len(out))
	return out, nil
}

// Detail fetches the full nutrient record for one candidate. A 404 returns
// (nil, nil): the id simply has no usable record.
func (c *FDCClient) Detail(ctx context.Context, externalID string) (*action.Food, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/food/"+url.PathEscape(externalID)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("FOOD_CLIENT: %s: %s", resp.Status, string(body))
	}

	var wd wireFoodDetail
	if err := json.Unmarshal(body, &wd); err != nil {
		return nil, fmt.Errorf("FOOD_CLIENT: failed to decode detail response: %w", err)
	}

	food := &action.Food{
		ExternalID:  strconv.FormatInt(wd.FDCID, 10),
		Description: wd.Description,
		DataType:    wd.DataType,
	}
	if wd.ServingSize > 0 && isGramUnit(wd.ServingSizeUnit) {
		food.ServingGrams = wd.ServingSize
	}
	for _, n := range wd.FoodNutrients {
		switch n.Nutrient.Number {
		case "208": // Energy (kcal)
			food.Calories = n.Amount
		case "203": // Protein
			food.ProteinG = n.Amount
		case "205": // Carbohydrate, by difference
			food.CarbsG = n.Amount
		case "204": // Total lipid (fat)
			food.FatG = n.Amount
		}
	}
	return food, nil
}

func isGramUnit(u string) bool {
	switch u {
	case "g", "G", "GRM", "gram", "grams":
		return true
	}
	return false
}
