package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ReportTypes lists the CSV reports the server can render
var ReportTypes = []string{
	"properties",
	"verified-properties",
	"pending-properties",
	"users",
	"user-activity",
	"user-properties",
	"blockchain-transactions",
	"transfer-history",
	"ownership-history",
}

// Dashboard returns the admin overview
func (c *Client) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	if err := c.Do(ctx, http.MethodGet, "/admin/dashboard", nil, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Users lists accounts
func (c *Client) Users(ctx context.Context, q UserQuery) (*UserPage, error) {
	v := url.Values{}
	setString(v, "search", q.Search)
	setString(v, "role", q.Role)
	setString(v, "status", q.Status)
	setInt(v, "page", q.Page)
	setInt(v, "per_page", q.PerPage)

	var page UserPage
	if err := c.Do(ctx, http.MethodGet, "/admin/users", v, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// User fetches one account
func (c *Client) User(ctx context.Context, userID string) (*User, error) {
	var resp userEnvelope
	if err := c.Do(ctx, http.MethodGet, "/admin/users/"+url.PathEscape(userID), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// SetUserStatus activates or deactivates an account
func (c *Client) SetUserStatus(ctx context.Context, userID string, active bool) (*User, error) {
	status := "inactive"
	if active {
		status = "active"
	}
	var resp userEnvelope
	path := "/admin/users/" + url.PathEscape(userID) + "/status"
	if err := c.Do(ctx, http.MethodPost, path, nil, map[string]string{"status": status}, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// PendingLands returns the review queue
func (c *Client) PendingLands(ctx context.Context, page, perPage int) (*LandPage, error) {
	v := url.Values{}
	setInt(v, "page", page)
	setInt(v, "per_page", perPage)

	var lp LandPage
	if err := c.Do(ctx, http.MethodGet, "/admin/lands/pending", v, nil, &lp); err != nil {
		return nil, err
	}
	return &lp, nil
}

// AllLands lists every land
func (c *Client) AllLands(ctx context.Context, q LandQuery) (*LandPage, error) {
	var lp LandPage
	if err := c.Do(ctx, http.MethodGet, "/admin/lands/all", q.values(), nil, &lp); err != nil {
		return nil, err
	}
	return &lp, nil
}

// ReviewLand verifies or rejects a land; action is approve or reject
func (c *Client) ReviewLand(ctx context.Context, landID, action, comments string) (*Land, error) {
	body := map[string]string{"action": action, "comments": comments}
	var resp landEnvelope
	if err := c.Do(ctx, http.MethodPost, "/admin"+landPath(landID, "review"), nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Land, nil
}

// RegisterOnBlockchain mints the token of a verified land
func (c *Client) RegisterOnBlockchain(ctx context.Context, landID string) (*Registration, error) {
	var reg Registration
	if err := c.Do(ctx, http.MethodPost, "/admin"+landPath(landID, "register-blockchain"), nil, nil, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// AllTransfers lists every transfer
func (c *Client) AllTransfers(ctx context.Context, q TransferQuery) (*TransferPage, error) {
	v := url.Values{}
	setString(v, "status", q.Status)
	setString(v, "land_id", q.LandID)
	setInt(v, "page", q.Page)
	setInt(v, "per_page", q.PerPage)

	var page TransferPage
	if err := c.Do(ctx, http.MethodGet, "/admin/transfers", v, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// BlockchainStatus reports the ledger connection
func (c *Client) BlockchainStatus(ctx context.Context) (*BlockchainStatus, error) {
	var status BlockchainStatus
	if err := c.Do(ctx, http.MethodGet, "/admin/blockchain/status", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Report downloads a CSV report and its suggested file name
func (c *Client) Report(ctx context.Context, reportType string) ([]byte, string, error) {
	return c.Download(ctx, "/admin/reports/"+url.PathEscape(reportType), nil)
}

// AuditLog returns the audit trail, newest first
func (c *Client) AuditLog(ctx context.Context, q AuditQuery) (*AuditPage, error) {
	v := url.Values{}
	setString(v, "action", q.Action)
	setString(v, "user_id", q.UserID)
	setString(v, "resource_id", q.ResourceID)
	if q.Success != nil {
		v.Set("success", strconv.FormatBool(*q.Success))
	}
	setInt(v, "page", q.Page)
	setInt(v, "per_page", q.PerPage)

	var page AuditPage
	if err := c.Do(ctx, http.MethodGet, "/admin/audit", v, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
