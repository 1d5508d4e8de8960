package resolve

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

type mockHTTPClient struct {
	response *http.Response
	err      error
	lastURL  string
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.lastURL = req.URL.String()
	return m.response, m.err
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestFDCClient_Search(t *testing.T) {
	body := `{"foods":[
		{"fdcId":171077,"description":"Chicken, broilers or fryers, breast, meat only, cooked, roasted","dataType":"SR Legacy","score":812.5},
		{"fdcId":2646170,"description":"Chicken breast, grilled","dataType":"Survey (FNDDS)","score":640.1}
	]}`
	mock := &mockHTTPClient{response: jsonResponse(http.StatusOK, body)}
	client, err := NewFDCClient(FDCClientOpts{BaseEndpoint: "http://example.com/fdc/v1", APIKey: "k", HTTPClient: mock})
	if err != nil {
		t.Fatalf("NewFDCClient: %v", err)
	}

	candidates, err := client.Search(context.Background(), "chicken breast", 18)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].ExternalID != "171077" {
		t.Errorf("expected external id 171077, got %s", candidates[0].ExternalID)
	}
	if candidates[0].DataType != "SR Legacy" {
		t.Errorf("expected SR Legacy, got %s", candidates[0].DataType)
	}
	if candidates[1].RankScore != 640.1 {
		t.Errorf("expected score 640.1, got %v", candidates[1].RankScore)
	}
	for _, want := range []string{"query=chicken+breast", "pageSize=18", "api_key=k"} {
		if !strings.Contains(mock.lastURL, want) {
			t.Errorf("search URL missing %q: %s", want, mock.lastURL)
		}
	}
}

func TestFDCClient_Search_HTTPError(t *testing.T) {
	mock := &mockHTTPClient{response: jsonResponse(http.StatusForbidden, `{"error":"bad key"}`)}
	client, _ := NewFDCClient(FDCClientOpts{BaseEndpoint: "http://example.com/fdc/v1", HTTPClient: mock})

	_, err := client.Search(context.Background(), "oats", 5)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if !strings.Contains(err.Error(), "FOOD_CLIENT:") {
		t.Errorf("unexpected error text: %v", err)
	}
}

func TestFDCClient_Detail(t *testing.T) {
	body := `{
		"fdcId":171077,
		"description":"Chicken, breast, roasted",
		"dataType":"SR Legacy",
		"servingSize":100,
		"servingSizeUnit":"g",
		"foodNutrients":[
			{"nutrient":{"number":"208","name":"Energy"},"amount":165},
			{"nutrient":{"number":"203","name":"Protein"},"amount":31},
			{"nutrient":{"number":"205","name":"Carbohydrate, by difference"},"amount":0},
			{"nutrient":{"number":"204","name":"Total lipid (fat)"},"amount":3.6}
		]
	}`
	mock := &mockHTTPClient{response: jsonResponse(http.StatusOK, body)}
	client, _ := NewFDCClient(FDCClientOpts{BaseEndpoint: "http://example.com/fdc/v1", APIKey: "k", HTTPClient: mock})

	food, err := client.Detail(context.Background(), "171077")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if food == nil {
		t.Fatal("expected food, got nil")
	}
	if food.Calories != 165 {
		t.Errorf("expected 165 kcal, got %v", food.Calories)
	}
	if food.ProteinG != 31 {
		t.Errorf("expected 31g protein, got %v", food.ProteinG)
	}
	if food.ServingGrams != 100 {
		t.Errorf("expected 100g serving, got %v", food.ServingGrams)
	}
	if !strings.Contains(mock.lastURL, "/food/171077?") {
		t.Errorf("detail URL wrong: %s", mock.lastURL)
	}
}

func TestFDCClient_Detail_NotFoundIsNil(t *testing.T) {
	mock := &mockHTTPClient{response: jsonResponse(http.StatusNotFound, "")}
	client, _ := NewFDCClient(FDCClientOpts{BaseEndpoint: "http://example.com/fdc/v1", HTTPClient: mock})

	food, err := client.Detail(context.Background(), "999")
	if err != nil {
		t.Fatalf("expected nil error for 404, got %v", err)
	}
	if food != nil {
		t.Fatalf("expected nil food for 404, got %+v", food)
	}
}

func TestFDCClient_Detail_NonGramServingIgnored(t *testing.T) {
	body := `{"fdcId":1,"description":"Juice","dataType":"Branded","servingSize":8,"servingSizeUnit":"fl oz","foodNutrients":[]}`
	mock := &mockHTTPClient{response: jsonResponse(http.StatusOK, body)}
	client, _ := NewFDCClient(FDCClientOpts{BaseEndpoint: "http://example.com/fdc/v1", HTTPClient: mock})

	food, err := client.Detail(context.Background(), "1")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if food.ServingGrams != 0 {
		t.Errorf("non-gram serving should not set ServingGrams, got %v", food.ServingGrams)
	}
}
