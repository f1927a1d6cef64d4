// loadtest drives the order → payment → settle path concurrently
// against a running server and checks that stock never oversells:
// with stock S and N > S buyers, exactly S payments may settle.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Result records one buyer's end-to-end outcome.
type Result struct {
	Step   string
	Status int
	Body   string
	Err    error
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	adminToken := flag.String("admin-token", "dev-admin-token", "admin token")
	stockN := flag.Int("stock", 5, "initial stock for the seeded product")
	buyers := flag.Int("buyers", 20, "distinct concurrent buyers")
	concurrency := flag.Int("c", 10, "max concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	productID, err := seedProduct(client, *baseURL, *adminToken, *stockN)
	if err != nil {
		panic(fmt.Sprintf("seed product: %v", err))
	}
	fmt.Printf("seeded product %d with stock %d\n", productID, *stockN)

	results := make([]Result, *buyers)
	sem := make(chan struct{}, *concurrency)
	var wg sync.WaitGroup
	for i := 0; i < *buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = buyOnce(client, *baseURL, *adminToken, productID, int64(10001+i))
		}(i)
	}
	wg.Wait()

	settled := 0
	for _, r := range results {
		if r.Err == nil && r.Step == "done" {
			settled++
		}
	}
	fmt.Printf("buyers=%d settled=%d\n", *buyers, settled)

	final, err := getStock(client, *baseURL, productID)
	if err != nil {
		fmt.Println("stock check err:", err)
		return
	}
	fmt.Printf("final stock=%d (expected %d)\n", final, *stockN-settled)
	if final < 0 {
		fmt.Println("FAIL: oversold")
	} else if final != *stockN-settled {
		fmt.Println("FAIL: stock drift")
	} else {
		fmt.Println("OK")
	}
}

// buyOnce runs one buyer through order create, payment create, sandbox
// settle and confirm. Losing the stock race at capture time counts as
// a clean failure, not an error.
func buyOnce(client *http.Client, baseURL, adminToken string, productID uint, userID int64) Result {
	userHdr := map[string]string{"X-User-ID": fmt.Sprintf("%d", userID)}

	var orderResp struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	status, err := postJSON(client, baseURL+"/api/orders", map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": 1}},
	}, userHdr, &orderResp)
	if err != nil || status != http.StatusCreated {
		return Result{Step: "order", Status: status, Err: err}
	}

	var payResp struct {
		Data struct {
			PaymentID     uint   `json:"payment_id"`
			TransactionID string `json:"transaction_id"`
		} `json:"data"`
	}
	status, err = postJSON(client, baseURL+"/api/payments/create", map[string]any{
		"order_id": orderResp.Data.ID,
		"provider": "stripe",
	}, userHdr, &payResp)
	if err != nil || status != http.StatusCreated {
		return Result{Step: "payment", Status: status, Err: err}
	}

	status, err = postJSON(client, baseURL+"/api/payments/sandbox/settle", map[string]any{
		"transaction_id": payResp.Data.TransactionID,
		"status":         "succeeded",
	}, map[string]string{"X-Admin-Token": adminToken}, nil)
	if err != nil || status != http.StatusOK {
		return Result{Step: "settle", Status: status, Err: err}
	}

	var confirmResp struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	status, err = postJSON(client, baseURL+"/api/payments/confirm", map[string]any{
		"payment_id":     payResp.Data.PaymentID,
		"transaction_id": payResp.Data.TransactionID,
	}, userHdr, &confirmResp)
	if err != nil {
		return Result{Step: "confirm", Status: status, Err: err}
	}
	if confirmResp.Data.Status != "success" {
		// Beaten to the last unit at capture time.
		return Result{Step: "confirm", Status: status}
	}
	return Result{Step: "done", Status: status}
}

func seedProduct(client *http.Client, baseURL, adminToken string, stock int) (uint, error) {
	var resp struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	status, err := postJSON(client, baseURL+"/api/products", map[string]any{
		"name":        "loadtest item",
		"sku":         fmt.Sprintf("LT-%d", time.Now().UnixNano()),
		"price_cents": 1999,
		"stock":       stock,
	}, map[string]string{"X-Admin-Token": adminToken}, &resp)
	if err != nil {
		return 0, err
	}
	if status != http.StatusCreated {
		return 0, fmt.Errorf("unexpected status %d", status)
	}
	return resp.Data.ID, nil
}

func getStock(client *http.Client, baseURL string, productID uint) (int, error) {
	resp, err := client.Get(fmt.Sprintf("%s/api/products/%d", baseURL, productID))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	var out struct {
		Data struct {
			Stock int `json:"stock"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, err
	}
	return out.Data.Stock, nil
}

func postJSON(client *http.Client, url string, body any, headers map[string]string, out any) (int, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
