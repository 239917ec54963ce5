package observability

const (
	MSettlementRequests   MetricKey = "settlement_requests_total"
	MSettlementDuration   MetricKey = "settlement_duration_seconds"
	MHTTPRequests         MetricKey = "http_requests_total"
	MHTTPRequestDuration  MetricKey = "http_request_duration_seconds"
	MGatewayRequests      MetricKey = "gateway_requests_total"
	MGatewayDuration      MetricKey = "gateway_request_duration_seconds"
	MReconciliationEvents MetricKey = "reconciliation_entries_total"
	MPriceMismatches      MetricKey = "price_mismatch_total"
)
