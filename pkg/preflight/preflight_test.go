package preflight

import (
	"context"
	"net/url"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/agentdeploy/pkg/controlplane"
	"github.com/rzbill/agentdeploy/pkg/controlplane/memory"
	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/storage"
	"github.com/rzbill/agentdeploy/pkg/types"
)

const (
	roleARN      = "arn:aws:iam::123456789012:role/service-role/AgentRole"
	trustedDoc   = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"Service":"bedrock-agentcore.amazonaws.com"},"Action":"sts:AssumeRole"}]}`
	untrustedDoc = `{"Version":"2012-10-17","Statement":{"Effect":"Allow","Principal":{"Service":["lambda.amazonaws.com"]},"Action":"sts:AssumeRole"}}`
	imageURI     = "123456789012.dkr.ecr.eu-west-1.amazonaws.com/agents/demo:v3"
)

type mockSTS struct{ mock.Mock }

func (m *mockSTS) GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sts.GetCallerIdentityOutput)
	return out, args.Error(1)
}

type mockIAM struct{ mock.Mock }

func (m *mockIAM) GetRole(ctx context.Context, in *iam.GetRoleInput, _ ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*iam.GetRoleOutput)
	return out, args.Error(1)
}

type mockECR struct{ mock.Mock }

func (m *mockECR) DescribeImages(ctx context.Context, in *ecr.DescribeImagesInput, _ ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*ecr.DescribeImagesOutput)
	return out, args.Error(1)
}

func roleOutput(doc string) *iam.GetRoleOutput {
	return &iam.GetRoleOutput{Role: &iamtypes.Role{
		RoleName:                 aws.String("AgentRole"),
		AssumeRolePolicyDocument: aws.String(url.QueryEscape(doc)),
	}}
}

func TestRunAllPass(t *testing.T) {
	ctx := context.Background()
	stsAPI := &mockSTS{}
	stsAPI.On("GetCallerIdentity", ctx, mock.Anything).Return(&sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		Arn:     aws.String("arn:aws:iam::123456789012:user/ci"),
	}, nil)
	iamAPI := &mockIAM{}
	iamAPI.On("GetRole", ctx, mock.MatchedBy(func(in *iam.GetRoleInput) bool {
		return aws.ToString(in.RoleName) == "AgentRole"
	})).Return(roleOutput(trustedDoc), nil)

	c := &Checker{
		STS:          stsAPI,
		IAM:          iamAPI,
		ControlPlane: memory.New(),
		Store:        storage.NewMemoryStore("artifacts"),
		Logger:       log.NewNopLogger(),
	}
	results := c.Run(ctx, Target{RoleARN: roleARN, Bucket: "artifacts"})
	require.Len(t, results, 5)
	assert.Equal(t, StatusPass, results[0].Status)
	assert.Contains(t, results[0].Detail, "123456789012")
	assert.Equal(t, StatusPass, results[1].Status)
	assert.Equal(t, StatusPass, results[2].Status)
	assert.Equal(t, StatusPass, results[3].Status)
	assert.Equal(t, StatusSkip, results[4].Status)
	assert.False(t, Failed(results))
	stsAPI.AssertExpectations(t)
	iamAPI.AssertExpectations(t)
}

func TestControlPlaneAccessDenied(t *testing.T) {
	cp := memory.New()
	cp.InjectError(controlplane.OpListRuntimes, controlplane.NewAPIError(controlplane.OpListRuntimes, controlplane.CodeAccessDenied, "nope"))
	c := &Checker{ControlPlane: cp}

	res := c.ControlPlaneAccess(context.Background())
	assert.Equal(t, StatusFail, res.Status)
	assert.ErrorIs(t, res.Err, types.ErrAccessDenied)
	assert.Contains(t, res.Hint, "bedrock-agentcore")
}

func TestRoleChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("untrusted", func(t *testing.T) {
		iamAPI := &mockIAM{}
		iamAPI.On("GetRole", ctx, mock.Anything).Return(roleOutput(untrustedDoc), nil)
		res := (&Checker{IAM: iamAPI}).Role(ctx, roleARN)
		assert.Equal(t, StatusFail, res.Status)
		assert.Contains(t, res.Detail, "does not trust")
	})

	t.Run("missing", func(t *testing.T) {
		iamAPI := &mockIAM{}
		iamAPI.On("GetRole", ctx, mock.Anything).Return(nil, &smithy.GenericAPIError{Code: "NoSuchEntity", Message: "no role"})
		res := (&Checker{IAM: iamAPI}).Role(ctx, roleARN)
		assert.Equal(t, StatusFail, res.Status)
		assert.Contains(t, res.Detail, "does not exist")
	})

	t.Run("unset", func(t *testing.T) {
		res := (&Checker{}).Role(ctx, "")
		assert.Equal(t, StatusFail, res.Status)
		assert.NotEmpty(t, res.Hint)
	})

	t.Run("no client", func(t *testing.T) {
		res := (&Checker{}).Role(ctx, roleARN)
		assert.Equal(t, StatusSkip, res.Status)
	})
}

func TestBucketChecks(t *testing.T) {
	ctx := context.Background()
	c := &Checker{Store: storage.NewMemoryStore("artifacts")}

	assert.Equal(t, StatusPass, c.Bucket(ctx, "artifacts", false).Status)
	assert.Equal(t, StatusFail, c.Bucket(ctx, "elsewhere", false).Status)
	assert.Equal(t, StatusWarn, c.Bucket(ctx, "elsewhere", true).Status)
	assert.Equal(t, StatusFail, c.Bucket(ctx, "", false).Status)
	assert.Equal(t, StatusSkip, c.Bucket(ctx, "", true).Status)
}

func TestImageCheck(t *testing.T) {
	ctx := context.Background()
	ecrAPI := &mockECR{}
	ecrAPI.On("DescribeImages", ctx, mock.MatchedBy(func(in *ecr.DescribeImagesInput) bool {
		return aws.ToString(in.RepositoryName) == "agents/demo" && aws.ToString(in.ImageIds[0].ImageTag) == "v3"
	})).Return(&ecr.DescribeImagesOutput{}, nil).Once()
	ecrAPI.On("DescribeImages", ctx, mock.Anything).Return(nil, &smithy.GenericAPIError{Code: "ImageNotFoundException"}).Once()

	c := &Checker{ECR: ecrAPI}
	assert.Equal(t, StatusPass, c.Image(ctx, imageURI).Status)
	res := c.Image(ctx, imageURI)
	assert.Equal(t, StatusFail, res.Status)
	assert.Contains(t, res.Detail, "not found")
	assert.Equal(t, StatusSkip, c.Image(ctx, "").Status)
}

func TestRequired(t *testing.T) {
	ctx := context.Background()
	iamAPI := &mockIAM{}
	iamAPI.On("GetRole", ctx, mock.Anything).Return(roleOutput(trustedDoc), nil)

	c := &Checker{IAM: iamAPI, Store: storage.NewMemoryStore("artifacts")}
	assert.NoError(t, c.Required(ctx, Target{RoleARN: roleARN, Bucket: "artifacts"}))

	err := c.Required(ctx, Target{RoleARN: roleARN, Bucket: "missing"})
	require.ErrorIs(t, err, types.ErrPrecondition)
	assert.Contains(t, err.Error(), "artifact bucket")
}

func TestRoleName(t *testing.T) {
	name, err := RoleName(roleARN)
	require.NoError(t, err)
	assert.Equal(t, "AgentRole", name)

	name, err = RoleName("arn:aws:iam::1:role/Plain")
	require.NoError(t, err)
	assert.Equal(t, "Plain", name)

	_, err = RoleName("AgentRole")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestTrustsPrincipal(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want bool
	}{
		{"array statement", trustedDoc, true},
		{"single statement", untrustedDoc, false},
		{"service list", `{"Statement":[{"Effect":"Allow","Principal":{"Service":["lambda.amazonaws.com","bedrock-agentcore.amazonaws.com"]}}]}`, true},
		{"deny", `{"Statement":[{"Effect":"Deny","Principal":{"Service":"bedrock-agentcore.amazonaws.com"}}]}`, false},
		{"aws principal", `{"Statement":[{"Effect":"Allow","Principal":{"AWS":"arn:aws:iam::1:root"}}]}`, false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TrustsPrincipal(tt.doc, ServicePrincipal)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := TrustsPrincipal("{not json", ServicePrincipal)
	assert.Error(t, err)
}

func TestParseImageURI(t *testing.T) {
	ref, err := ParseImageURI(imageURI)
	require.NoError(t, err)
	assert.Equal(t, ImageRef{Account: "123456789012", Region: "eu-west-1", Repository: "agents/demo", Tag: "v3"}, ref)

	ref, err = ParseImageURI("123456789012.dkr.ecr.us-east-1.amazonaws.com/demo@sha256:abc")
	require.NoError(t, err)
	assert.Equal(t, "sha256:abc", ref.Digest)

	ref, err = ParseImageURI("123456789012.dkr.ecr.us-east-1.amazonaws.com/demo")
	require.NoError(t, err)
	assert.Equal(t, "latest", ref.Tag)

	_, err = ParseImageURI("docker.io/library/python:3.11")
	assert.ErrorIs(t, err, types.ErrValidation)
}
