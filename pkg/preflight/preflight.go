// Package preflight verifies the account is ready for a deployment before
// anything is mutated: credentials, control plane access, the execution
// role and its trust policy, the artifact bucket and, for container
// artifacts, the image.
package preflight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/types"
)

// ServicePrincipal must be trusted by the execution role.
const ServicePrincipal = "bedrock-agentcore.amazonaws.com"

// STSAPI is the subset of the STS client used here.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// IAMAPI is the subset of the IAM client used here.
type IAMAPI interface {
	GetRole(ctx context.Context, in *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
}

// ECRAPI is the subset of the ECR client used here.
type ECRAPI interface {
	DescribeImages(ctx context.Context, in *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
}

// RuntimeLister lists runtimes. controlplane.ControlPlane satisfies it.
type RuntimeLister interface {
	ListRuntimes(ctx context.Context) ([]types.RuntimeSummary, error)
}

// BucketChecker reports whether a bucket is reachable. The storage
// package's object stores satisfy it.
type BucketChecker interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// Target is what the checks verify.
type Target struct {
	RoleARN  string
	Bucket   string
	ImageURI string
}

// Status is the outcome of one check.
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
	StatusSkip Status = "SKIP"
)

// Result is the outcome of one check.
type Result struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
	Hint   string `json:"hint,omitempty"`
	Err    error  `json:"-"`
}

// Checker runs the checks. Nil clients skip their checks.
type Checker struct {
	STS          STSAPI
	IAM          IAMAPI
	ECR          ECRAPI
	ControlPlane RuntimeLister
	Store        BucketChecker
	Logger       log.Logger
}

func (c *Checker) logger() log.Logger {
	if c.Logger == nil {
		return log.GetDefaultLogger().WithComponent("preflight")
	}
	return c.Logger.WithComponent("preflight")
}

// Run runs every check in order and returns all results. It never stops
// early so the report shows every problem at once.
func (c *Checker) Run(ctx context.Context, t Target) []Result {
	results := []Result{
		c.Identity(ctx),
		c.ControlPlaneAccess(ctx),
		c.Role(ctx, t.RoleARN),
		c.Bucket(ctx, t.Bucket, t.ImageURI != ""),
		c.Image(ctx, t.ImageURI),
	}
	for _, r := range results {
		c.logger().Debug("preflight check", log.Str("check", r.Name), log.Str("status", string(r.Status)))
	}
	return results
}

// Required runs the checks a deployment cannot proceed without, the role
// and the bucket (or the image), and returns the first failure as a
// *types.PreconditionError.
func (c *Checker) Required(ctx context.Context, t Target) error {
	checks := []Result{c.Role(ctx, t.RoleARN)}
	if t.ImageURI != "" {
		checks = append(checks, c.Image(ctx, t.ImageURI))
	} else {
		checks = append(checks, c.Bucket(ctx, t.Bucket, false))
	}
	for _, r := range checks {
		if r.Status == StatusFail {
			return &types.PreconditionError{What: strings.ToLower(r.Name), Detail: r.Detail}
		}
	}
	return nil
}

// Failed reports whether any result failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Status == StatusFail {
			return true
		}
	}
	return false
}

// Identity calls STS GetCallerIdentity.
func (c *Checker) Identity(ctx context.Context) Result {
	res := Result{Name: "AWS credentials"}
	if c.STS == nil {
		return skip(res, "no STS client")
	}
	out, err := c.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fail(res, err, "configure credentials with --profile, AWS_PROFILE or AGENTDEPLOY_ACCESS_KEY_ID")
	}
	res.Status = StatusPass
	res.Detail = fmt.Sprintf("account %s (%s)", aws.ToString(out.Account), aws.ToString(out.Arn))
	return res
}

// ControlPlaneAccess lists runtimes to prove the caller may use the
// service.
func (c *Checker) ControlPlaneAccess(ctx context.Context) Result {
	res := Result{Name: "Control plane access"}
	if c.ControlPlane == nil {
		return skip(res, "no control plane client")
	}
	list, err := c.ControlPlane.ListRuntimes(ctx)
	if err != nil {
		hint := ""
		if errors.Is(err, types.ErrAccessDenied) {
			hint = "attach a policy allowing bedrock-agentcore:* actions to the caller"
		}
		return fail(res, err, hint)
	}
	res.Status = StatusPass
	res.Detail = fmt.Sprintf("%d runtime(s) visible", len(list))
	return res
}

// Role checks the execution role exists and trusts the service principal.
func (c *Checker) Role(ctx context.Context, roleARN string) Result {
	res := Result{Name: "Execution role"}
	if roleARN == "" {
		return fail(res, errors.New("no role ARN configured"), "set role_arn in the config file or AGENTDEPLOY_ROLE_ARN")
	}
	if c.IAM == nil {
		return skip(res, "no IAM client")
	}
	name, err := RoleName(roleARN)
	if err != nil {
		return fail(res, err, "")
	}
	out, err := c.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
	if err != nil {
		if errorCode(err) == "NoSuchEntity" {
			return fail(res, fmt.Errorf("role %s does not exist", name), "create the role or fix role_arn")
		}
		return fail(res, err, "")
	}
	doc := ""
	if out.Role != nil {
		doc = aws.ToString(out.Role.AssumeRolePolicyDocument)
	}
	trusted, err := TrustsPrincipal(doc, ServicePrincipal)
	if err != nil {
		return fail(res, err, "")
	}
	if !trusted {
		return fail(res, fmt.Errorf("role %s does not trust %s", name, ServicePrincipal),
			"add "+ServicePrincipal+" as a trusted service principal on the role")
	}
	res.Status = StatusPass
	res.Detail = name
	return res
}

// Bucket checks the artifact bucket is reachable. With a container
// artifact a missing bucket is only a warning.
func (c *Checker) Bucket(ctx context.Context, bucket string, optional bool) Result {
	res := Result{Name: "Artifact bucket"}
	if bucket == "" {
		if optional {
			return skip(res, "container artifact, no bucket needed")
		}
		return fail(res, errors.New("no bucket configured"), "set bucket in the config file or AGENTDEPLOY_BUCKET")
	}
	if c.Store == nil {
		return skip(res, "no object store client")
	}
	ok, err := c.Store.BucketExists(ctx, bucket)
	if err != nil {
		return fail(res, err, "check s3:ListBucket permission on "+bucket)
	}
	if !ok {
		if optional {
			res.Status = StatusWarn
			res.Detail = fmt.Sprintf("bucket %s not found", bucket)
			return res
		}
		return fail(res, fmt.Errorf("bucket %s not found", bucket), "create the bucket in the deployment region")
	}
	res.Status = StatusPass
	res.Detail = bucket
	return res
}

// Image checks a container image exists in ECR.
func (c *Checker) Image(ctx context.Context, imageURI string) Result {
	res := Result{Name: "Container image"}
	if imageURI == "" {
		return skip(res, "code artifact")
	}
	if c.ECR == nil {
		return skip(res, "no ECR client")
	}
	ref, err := ParseImageURI(imageURI)
	if err != nil {
		return fail(res, err, "")
	}
	id := ecrtypes.ImageIdentifier{}
	if ref.Digest != "" {
		id.ImageDigest = aws.String(ref.Digest)
	} else {
		id.ImageTag = aws.String(ref.Tag)
	}
	_, err = c.ECR.DescribeImages(ctx, &ecr.DescribeImagesInput{
		RegistryId:     aws.String(ref.Account),
		RepositoryName: aws.String(ref.Repository),
		ImageIds:       []ecrtypes.ImageIdentifier{id},
	}, func(o *ecr.Options) { o.Region = ref.Region })
	if err != nil {
		switch errorCode(err) {
		case "ImageNotFoundException", "RepositoryNotFoundException":
			return fail(res, fmt.Errorf("image %s not found", imageURI), "push the image before deploying")
		}
		return fail(res, err, "")
	}
	res.Status = StatusPass
	res.Detail = imageURI
	return res
}

func skip(r Result, detail string) Result {
	r.Status = StatusSkip
	r.Detail = detail
	return r
}

func fail(r Result, err error, hint string) Result {
	r.Status = StatusFail
	r.Err = err
	r.Detail = err.Error()
	r.Hint = hint
	return r
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// RoleName extracts the role name from an IAM role ARN. Paths are
// dropped: arn:aws:iam::1:role/service/agent yields "agent".
func RoleName(roleARN string) (string, error) {
	idx := strings.Index(roleARN, ":role/")
	if !strings.HasPrefix(roleARN, "arn:") || idx < 0 {
		return "", types.NewValidationError("%q is not an IAM role ARN", roleARN)
	}
	rest := roleARN[idx+len(":role/"):]
	name := rest[strings.LastIndex(rest, "/")+1:]
	if name == "" {
		return "", types.NewValidationError("%q has no role name", roleARN)
	}
	return name, nil
}

type policyDocument struct {
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect    string          `json:"Effect"`
	Principal json.RawMessage `json:"Principal"`
}

// TrustsPrincipal reports whether an assume-role policy document allows
// the given service principal. IAM returns the document URL-encoded.
func TrustsPrincipal(doc, service string) (bool, error) {
	if doc == "" {
		return false, nil
	}
	if decoded, err := url.QueryUnescape(doc); err == nil {
		doc = decoded
	}

	var raw struct {
		Statement json.RawMessage `json:"Statement"`
	}
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return false, fmt.Errorf("failed to parse trust policy: %w", err)
	}
	var pd policyDocument
	if len(raw.Statement) > 0 && raw.Statement[0] == '{' {
		var one policyStatement
		if err := json.Unmarshal(raw.Statement, &one); err != nil {
			return false, fmt.Errorf("failed to parse trust policy: %w", err)
		}
		pd.Statement = []policyStatement{one}
	} else if err := json.Unmarshal([]byte(doc), &pd); err != nil {
		return false, fmt.Errorf("failed to parse trust policy: %w", err)
	}

	for _, st := range pd.Statement {
		if !strings.EqualFold(st.Effect, "Allow") {
			continue
		}
		var p struct {
			Service json.RawMessage `json:"Service"`
		}
		if err := json.Unmarshal(st.Principal, &p); err != nil || len(p.Service) == 0 {
			continue
		}
		var single string
		if json.Unmarshal(p.Service, &single) == nil && single == service {
			return true, nil
		}
		var many []string
		if json.Unmarshal(p.Service, &many) == nil {
			for _, s := range many {
				if s == service {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// ImageRef is a parsed ECR image URI.
type ImageRef struct {
	Account    string
	Region     string
	Repository string
	Tag        string
	Digest     string
}

// ParseImageURI parses <account>.dkr.ecr.<region>.amazonaws.com/<repo>[:tag|@digest].
// A missing tag means "latest".
func ParseImageURI(uri string) (ImageRef, error) {
	host, path, ok := strings.Cut(uri, "/")
	if !ok || path == "" {
		return ImageRef{}, types.NewValidationError("%q is not an ECR image URI", uri)
	}
	parts := strings.Split(host, ".")
	if len(parts) < 6 || parts[1] != "dkr" || parts[2] != "ecr" {
		return ImageRef{}, types.NewValidationError("%q is not an ECR image URI", uri)
	}
	ref := ImageRef{Account: parts[0], Region: parts[3]}

	if repo, digest, ok := strings.Cut(path, "@"); ok {
		ref.Repository, ref.Digest = repo, digest
	} else if i := strings.LastIndex(path, ":"); i >= 0 {
		ref.Repository, ref.Tag = path[:i], path[i+1:]
	} else {
		ref.Repository, ref.Tag = path, "latest"
	}
	if ref.Repository == "" || (ref.Tag == "" && ref.Digest == "") {
		return ImageRef{}, types.NewValidationError("%q is not an ECR image URI", uri)
	}
	return ref, nil
}
