package settings

type UpdateSettingsPayload struct {
	FetchIntervalSeconds    *int    `json:"fetch_interval_seconds,omitempty" validate:"omitempty,min=60,max=86400"`
	MinRefetchDelaySeconds  *int    `json:"min_refetch_delay_seconds,omitempty" validate:"omitempty,min=60,max=604800"`
	RetryBackoffBaseSeconds *int    `json:"retry_backoff_base_seconds,omitempty" validate:"omitempty,min=1,max=86400"`
	SolverURL               *string `json:"solver_url,omitempty" validate:"omitempty,url"`
}
