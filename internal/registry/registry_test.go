package registry

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ecr "github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/go-logr/logr/testr"
)

type fakeECR struct {
	describeErr error
	created     []string
	policies    []string
	token       *string
}

func (f *fakeECR) DescribeRepositories(_ context.Context, _ *ecr.DescribeRepositoriesInput, _ ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &ecr.DescribeRepositoriesOutput{}, nil
}

func (f *fakeECR) CreateRepository(_ context.Context, in *ecr.CreateRepositoryInput, _ ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error) {
	f.created = append(f.created, aws.ToString(in.RepositoryName))
	return &ecr.CreateRepositoryOutput{}, nil
}

func (f *fakeECR) PutLifecyclePolicy(_ context.Context, in *ecr.PutLifecyclePolicyInput, _ ...func(*ecr.Options)) (*ecr.PutLifecyclePolicyOutput, error) {
	f.policies = append(f.policies, aws.ToString(in.LifecyclePolicyText))
	return &ecr.PutLifecyclePolicyOutput{}, nil
}

func (f *fakeECR) GetAuthorizationToken(_ context.Context, _ *ecr.GetAuthorizationTokenInput, _ ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error) {
	return &ecr.GetAuthorizationTokenOutput{
		AuthorizationData: []types.AuthorizationData{{AuthorizationToken: f.token}},
	}, nil
}

func TestDockerTarget(t *testing.T) {
	target, err := NewDocker(DockerConfig{BaseURL: "https://ccr.example.com/mirror/", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Registry() != "ccr.example.com" {
		t.Fatalf("unexpected registry %q", target.Registry())
	}
	if target.Root() != "ccr.example.com/mirror" {
		t.Fatalf("unexpected root %q", target.Root())
	}
	user, pass, err := target.BasicAuth(context.Background())
	if err != nil || user != "u" || pass != "p" {
		t.Fatalf("unexpected credentials %q/%q err=%v", user, pass, err)
	}
}

func TestRepositoryName(t *testing.T) {
	target, _ := NewDocker(DockerConfig{BaseURL: "ccr.example.com/mirror"})
	got := RepositoryName(target, "ccr.example.com/mirror/docker.io-library-nginx:1.25")
	if got != "mirror/docker.io-library-nginx" {
		t.Fatalf("unexpected repository %q", got)
	}
}

func TestECREnsureRepositoryCreatesMissing(t *testing.T) {
	api := &fakeECR{describeErr: &types.RepositoryNotFoundException{Message: aws.String("missing")}}
	c := &ecrClient{
		cfg:      ECRConfig{AccountID: "123456789012", Region: "eu-central-1", CreateRepo: true, LifecyclePolicy: `{"rules":[]}`},
		client:   api,
		registry: "123456789012.dkr.ecr.eu-central-1.amazonaws.com",
		log:      testr.New(t),
	}
	if err := c.EnsureRepository(context.Background(), "mirror/docker.io-library-nginx"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(api.created) != 1 || api.created[0] != "mirror/docker.io-library-nginx" {
		t.Fatalf("unexpected created repositories %v", api.created)
	}
	if len(api.policies) != 1 {
		t.Fatalf("expected lifecycle policy to be applied")
	}
}

func TestECREnsureRepositoryWithoutCreate(t *testing.T) {
	api := &fakeECR{describeErr: errors.New("RepositoryNotFoundException: nope")}
	c := &ecrClient{cfg: ECRConfig{CreateRepo: false}, client: api, log: testr.New(t)}
	if err := c.EnsureRepository(context.Background(), "x"); err == nil {
		t.Fatalf("expected error when creation disabled")
	}
	if len(api.created) != 0 {
		t.Fatalf("repository must not be created")
	}
}

func TestECRBasicAuthDecodesToken(t *testing.T) {
	token := base64.StdEncoding.EncodeToString([]byte("AWS:secret-token"))
	c := &ecrClient{client: &fakeECR{token: aws.String(token)}, log: testr.New(t)}
	user, pass, err := c.BasicAuth(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != "AWS" || pass != "secret-token" {
		t.Fatalf("unexpected credentials %q/%q", user, pass)
	}
}

func TestECRRoot(t *testing.T) {
	c := &ecrClient{cfg: ECRConfig{RepoPrefix: "/mirror/"}, registry: "1.dkr.ecr.us-east-1.amazonaws.com"}
	if c.Root() != "1.dkr.ecr.us-east-1.amazonaws.com/mirror" {
		t.Fatalf("unexpected root %q", c.Root())
	}
}
