package internal

import "expvar"

var (
	requestsTotal       = expvar.NewMap("gitmirror_requests_total")
	authFailures        = expvar.NewMap("gitmirror_auth_failures_total")
	parseErrors         = expvar.NewMap("gitmirror_parse_errors_total")
	handlerErrors       = expvar.NewMap("gitmirror_handler_errors_total")
	commitsRecorded     = expvar.NewInt("gitmirror_commits_recorded_total")
	commitsSkipped      = expvar.NewMap("gitmirror_commits_skipped_total")
	pullRequestUpserts  = expvar.NewInt("gitmirror_pull_requests_upserted_total")
	repositoriesUpdated = expvar.NewInt("gitmirror_repositories_updated_total")
	publishErrors       = expvar.NewMap("gitmirror_publish_errors_total")
)

func IncRequest(status string) {
	requestsTotal.Add(status, 1)
}

func IncAuthFailure(reason string) {
	authFailures.Add(reason, 1)
}

func IncParseError(event string) {
	parseErrors.Add(event, 1)
}

func IncHandlerError(event string) {
	handlerErrors.Add(event, 1)
}

func IncCommitRecorded() {
	commitsRecorded.Add(1)
}

func IncCommitSkipped(reason string) {
	commitsSkipped.Add(reason, 1)
}

func IncPullRequestUpsert() {
	pullRequestUpserts.Add(1)
}

func IncRepositoryUpdated() {
	repositoriesUpdated.Add(1)
}

func IncPublishError(driver string) {
	publishErrors.Add(driver, 1)
}
