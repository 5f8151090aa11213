package runinfo

import "testing"

func TestFromEnvGitHubActions(t *testing.T) {
	clearKnownEnv(t)
	t.Setenv("GITHUB_ACTIONS", "true")
	t.Setenv("GITHUB_SERVER_URL", "https://github.com")
	t.Setenv("GITHUB_REPOSITORY", "example/slowdigest")
	t.Setenv("GITHUB_HEAD_REF", "feature/env-meta")
	t.Setenv("GITHUB_REF", "refs/pull/108/merge")
	t.Setenv("GITHUB_SHA", "deadbeef")
	t.Setenv("GITHUB_WORKFLOW", "CI")
	t.Setenv("GITHUB_JOB", "digest")
	t.Setenv("GITHUB_RUN_ID", "123456")
	t.Setenv("GITHUB_ACTOR", "octocat")

	info := FromEnv()
	if info == nil {
		t.Fatalf("expected run info")
	}
	if !info.CI {
		t.Fatalf("expected ci=true")
	}
	if info.Provider != "github_actions" {
		t.Fatalf("provider=%q", info.Provider)
	}
	if info.Repository != "example/slowdigest" {
		t.Fatalf("repository=%q", info.Repository)
	}
	if info.Branch != "feature/env-meta" {
		t.Fatalf("branch=%q", info.Branch)
	}
	if info.PullRequest != "108" {
		t.Fatalf("pull_request=%q", info.PullRequest)
	}
	if info.BuildURL != "https://github.com/example/slowdigest/actions/runs/123456" {
		t.Fatalf("build_url=%q", info.BuildURL)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearKnownEnv(t)
	t.Setenv("SLOWDIGEST_CI_PROVIDER", "manual")
	t.Setenv("SLOWDIGEST_CI_REPOSITORY", "example/slowdigest")
	t.Setenv("SLOWDIGEST_CI_BRANCH", "nightly")
	t.Setenv("SLOWDIGEST_CI_COMMIT", "abc123")
	t.Setenv("SLOWDIGEST_CI_WORKFLOW", "nightly-digest")
	t.Setenv("SLOWDIGEST_CI_RUN_ID", "run-77")

	info := FromEnv()
	if info == nil {
		t.Fatalf("expected run info")
	}
	if !info.CI {
		t.Fatalf("expected ci=true when overrides are set")
	}
	if info.Provider != "manual" {
		t.Fatalf("provider=%q", info.Provider)
	}
	if info.Branch != "nightly" {
		t.Fatalf("branch=%q", info.Branch)
	}
	if info.Commit != "abc123" {
		t.Fatalf("commit=%q", info.Commit)
	}
	if info.RunID != "run-77" {
		t.Fatalf("run_id=%q", info.RunID)
	}
}

func TestFromEnvEmpty(t *testing.T) {
	clearKnownEnv(t)
	if info := FromEnv(); info != nil {
		t.Fatalf("expected nil run info, got %+v", *info)
	}
}

func clearKnownEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CI",
		"CI_PROVIDER",
		"CI_SYSTEM",
		"CI_PROJECT_PATH",
		"CI_COMMIT_REF_NAME",
		"CI_COMMIT_SHA",
		"CI_PIPELINE_SOURCE",
		"CI_JOB_NAME",
		"CI_PIPELINE_ID",
		"CI_JOB_URL",
		"GITLAB_CI",
		"GITLAB_USER_LOGIN",
		"BUILDKITE",
		"JENKINS_URL",
		"BUILD_REPOSITORY_NAME",
		"BUILD_SOURCEVERSION",
		"BUILD_DEFINITIONNAME",
		"BUILD_BUILDID",
		"BUILD_BUILDURI",
		"BUILD_URL",
		"BUILD_ID",
		"JOB_NAME",
		"BRANCH_NAME",
		"GIT_BRANCH",
		"GIT_COMMIT",
		"SYSTEM_PULLREQUEST_PULLREQUESTNUMBER",
		"PR_NUMBER",
		"BUILD_REQUESTEDFOR",
		"GITHUB_ACTIONS",
		"GITHUB_SERVER_URL",
		"GITHUB_REPOSITORY",
		"GITHUB_REF",
		"GITHUB_REF_NAME",
		"GITHUB_HEAD_REF",
		"GITHUB_SHA",
		"GITHUB_WORKFLOW",
		"GITHUB_JOB",
		"GITHUB_RUN_ID",
		"GITHUB_ACTOR",
		"GITHUB_PR_NUMBER",
		"SLOWDIGEST_CI",
		"SLOWDIGEST_CI_PROVIDER",
		"SLOWDIGEST_CI_REPOSITORY",
		"SLOWDIGEST_CI_BRANCH",
		"SLOWDIGEST_CI_COMMIT",
		"SLOWDIGEST_CI_WORKFLOW",
		"SLOWDIGEST_CI_JOB",
		"SLOWDIGEST_CI_RUN_ID",
		"SLOWDIGEST_CI_PULL_REQUEST",
		"SLOWDIGEST_CI_ACTOR",
		"SLOWDIGEST_CI_BUILD_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
