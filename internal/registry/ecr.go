package registry

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	ecr "github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/go-logr/logr"
)

type ECRConfig struct {
	AccountID  string
	Region     string
	RepoPrefix string
	CreateRepo bool
	// LifecyclePolicy contains optional policy JSON applied when repositories are created.
	LifecyclePolicy string
}

type ecrAPI interface {
	DescribeRepositories(ctx context.Context, in *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	CreateRepository(ctx context.Context, in *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error)
	PutLifecyclePolicy(ctx context.Context, in *ecr.PutLifecyclePolicyInput, optFns ...func(*ecr.Options)) (*ecr.PutLifecyclePolicyOutput, error)
	GetAuthorizationToken(ctx context.Context, in *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
}

type ecrClient struct {
	cfg      ECRConfig
	client   ecrAPI
	registry string
	log      logr.Logger
}

func NewECR(ctx context.Context, cfg ECRConfig, log logr.Logger) (Target, error) {
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	c := ecr.NewFromConfig(awsCfg)
	reg := fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com", cfg.AccountID, cfg.Region)
	return &ecrClient{cfg: cfg, client: c, registry: reg, log: log.WithName("ecr")}, nil
}

func (c *ecrClient) Registry() string { return c.registry }

func (c *ecrClient) Root() string {
	prefix := strings.Trim(c.cfg.RepoPrefix, "/")
	if prefix == "" {
		return c.registry
	}
	return c.registry + "/" + prefix
}

func (c *ecrClient) EnsureRepository(ctx context.Context, name string) error {
	log := c.log.WithValues("repository", name, "registry", c.registry)

	describeInput := &ecr.DescribeRepositoriesInput{RepositoryNames: []string{name}}
	if c.cfg.AccountID != "" {
		describeInput.RegistryId = aws.String(c.cfg.AccountID)
	}

	_, err := c.client.DescribeRepositories(ctx, describeInput)
	if err == nil {
		log.V(1).Info("repository already exists")
		return nil
	}

	var rnfe *types.RepositoryNotFoundException
	if !c.cfg.CreateRepo || !(errors.As(err, &rnfe) || strings.Contains(err.Error(), "RepositoryNotFound")) {
		log.Error(err, "failed to describe repository")
		return err
	}

	log.Info("creating repository")
	createInput := &ecr.CreateRepositoryInput{RepositoryName: aws.String(name)}
	if c.cfg.AccountID != "" {
		createInput.RegistryId = aws.String(c.cfg.AccountID)
	}
	if _, err := c.client.CreateRepository(ctx, createInput); err != nil {
		log.Error(err, "failed to create repository")
		return err
	}
	log.Info("repository created")

	policy := strings.TrimSpace(c.cfg.LifecyclePolicy)
	if policy == "" {
		return nil
	}
	putInput := &ecr.PutLifecyclePolicyInput{
		RepositoryName:      aws.String(name),
		LifecyclePolicyText: aws.String(policy),
	}
	if c.cfg.AccountID != "" {
		putInput.RegistryId = aws.String(c.cfg.AccountID)
	}
	if _, err := c.client.PutLifecyclePolicy(ctx, putInput); err != nil {
		log.Error(err, "failed to apply lifecycle policy")
		return err
	}
	log.Info("applied lifecycle policy")
	return nil
}

func (c *ecrClient) BasicAuth(ctx context.Context) (username, password string, err error) {
	log := c.log.WithValues("registry", c.registry)

	out, err := c.client.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		log.Error(err, "failed to get authorization token")
		return "", "", err
	}
	if len(out.AuthorizationData) == 0 || out.AuthorizationData[0].AuthorizationToken == nil {
		noDataErr := fmt.Errorf("no ECR auth data")
		log.Error(noDataErr, "received empty authorization data")
		return "", "", noDataErr
	}
	dec, err := base64.StdEncoding.DecodeString(*out.AuthorizationData[0].AuthorizationToken)
	if err != nil {
		log.Error(err, "failed to decode authorization token")
		return "", "", err
	}
	parts := strings.SplitN(string(dec), ":", 2)
	if len(parts) != 2 {
		unexpectedErr := fmt.Errorf("unexpected token")
		log.Error(unexpectedErr, "authorization token in unexpected format")
		return "", "", unexpectedErr
	}
	return parts[0], parts[1], nil
}
