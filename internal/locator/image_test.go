package locator

import (
	"strings"
	"testing"
)

func TestParseImage(t *testing.T) {
	cases := []struct {
		ref  string
		want Image
	}{
		{ref: "nginx", want: Image{Registry: "docker.io", Path: "library/nginx", Tag: "latest"}},
		{ref: "nginx:1.25", want: Image{Registry: "docker.io", Path: "library/nginx", Tag: "1.25"}},
		{ref: "bitnami/redis:7.2", want: Image{Registry: "docker.io", Path: "bitnami/redis", Tag: "7.2"}},
		{ref: "docker.io/nginx:1.25", want: Image{Registry: "docker.io", Path: "library/nginx", Tag: "1.25"}},
		{ref: "docker.io/library/nginx", want: Image{Registry: "docker.io", Path: "library/nginx", Tag: "latest"}},
		{ref: "ghcr.io/org/app", want: Image{Registry: "ghcr.io", Path: "org/app", Tag: "latest"}},
		{ref: "quay.io/cilium/cilium:v1.15.0", want: Image{Registry: "quay.io", Path: "cilium/cilium", Tag: "v1.15.0"}},
		{ref: "registry.k8s.io/pause:3.9", want: Image{Registry: "registry.k8s.io", Path: "pause", Tag: "3.9"}},
		{ref: "localhost/dev/app:test", want: Image{Registry: "localhost", Path: "dev/app", Tag: "test"}},
		{ref: "  ghcr.io/org/app:1  ", want: Image{Registry: "ghcr.io", Path: "org/app", Tag: "1"}},
		// A registry port without a tag is read as the tag.
		{ref: "localhost:5000/app", want: Image{Registry: "docker.io", Path: "library/localhost", Tag: "5000/app"}},
	}

	for _, tc := range cases {
		t.Run(tc.ref, func(t *testing.T) {
			got := ParseImage(tc.ref)
			if got != tc.want {
				t.Fatalf("ParseImage(%q): expected %+v, got %+v", tc.ref, tc.want, got)
			}
		})
	}
}

func TestParseImageExplicitRegistryIsKept(t *testing.T) {
	for _, ref := range []string{"ghcr.io/org/app:1", "registry.example.com/team/svc", "my.registry/a/b/c:d"} {
		got := ParseImage(ref)
		host := strings.SplitN(ref, "/", 2)[0]
		if got.Registry != host {
			t.Fatalf("ParseImage(%q): expected registry %q, got %q", ref, host, got.Registry)
		}
		if got.Registry == DefaultRegistry {
			t.Fatalf("ParseImage(%q): explicit registry replaced by default", ref)
		}
	}
}

func TestParseImageWellFormedPath(t *testing.T) {
	for _, ref := range []string{"nginx", "a/b", "ghcr.io/x/y/z:1", "docker.io/busybox", "weird/:tag", "", ":tag", "/"} {
		got := ParseImage(ref)
		if got.Registry == "" {
			t.Fatalf("ParseImage(%q): empty registry", ref)
		}
		if strings.HasPrefix(got.Path, "/") || strings.HasSuffix(got.Path, "/") {
			t.Fatalf("ParseImage(%q): path %q has leading or trailing slash", ref, got.Path)
		}
	}
}

func TestParseImageEmptyName(t *testing.T) {
	got := ParseImage(":tag")
	want := Image{Registry: DefaultRegistry, Path: "", Tag: "tag"}
	if got != want {
		t.Fatalf("ParseImage(%q): expected %+v, got %+v", ":tag", want, got)
	}
	if s := got.String(); s != "docker.io/:tag" {
		t.Fatalf("unexpected normalized reference %q", s)
	}
}

func TestImageString(t *testing.T) {
	if got := ParseImage("nginx").String(); got != "docker.io/library/nginx:latest" {
		t.Fatalf("unexpected normalized reference %q", got)
	}
}

func TestTargetName(t *testing.T) {
	cases := []struct {
		ref  string
		want string
	}{
		{ref: "nginx:1.25", want: "registry.example.com/mirror/docker.io-library-nginx:1.25"},
		{ref: "ghcr.io/org/app", want: "registry.example.com/mirror/ghcr.io-org-app:latest"},
		{ref: "quay.io/a/b/c:v2", want: "registry.example.com/mirror/quay.io-a-b-c:v2"},
	}
	for _, tc := range cases {
		got := TargetName("registry.example.com/mirror/", ParseImage(tc.ref))
		if got != tc.want {
			t.Fatalf("TargetName(%q): expected %q, got %q", tc.ref, tc.want, got)
		}
	}
}

func TestTargetNameIsDeterministic(t *testing.T) {
	const root = "registry.example.com/mirror"
	for _, ref := range []string{"nginx:1.25", "ghcr.io/org/app", "redis", "a/b/c:d"} {
		first := TargetName(root, ParseImage(ref))
		second := TargetName(root, ParseImage(ref))
		if first != second {
			t.Fatalf("TargetName(%q) not stable: %q vs %q", ref, first, second)
		}
	}
}

func TestTargetNameKeepsTagAndRoot(t *testing.T) {
	const root = "registry.example.com/mirror"
	for _, tc := range []struct{ name, tag string }{{"nginx", "1.25"}, {"redis", "7"}, {"alpine", "3.20.1"}} {
		got := TargetName(root, ParseImage(tc.name+":"+tc.tag))
		if !strings.HasPrefix(got, root+"/") {
			t.Fatalf("expected %q to start with %q", got, root)
		}
		if !strings.HasSuffix(got, ":"+tc.tag) {
			t.Fatalf("expected %q to end with :%s", got, tc.tag)
		}
	}
}

func TestRegistryHostAndTargetRoot(t *testing.T) {
	cases := []struct {
		base     string
		wantHost string
		wantRoot string
	}{
		{base: "https://registry.example.com/mirror/", wantHost: "registry.example.com", wantRoot: "registry.example.com/mirror"},
		{base: "registry.example.com/mirror", wantHost: "registry.example.com", wantRoot: "registry.example.com/mirror"},
		{base: "ccr.ccs.tencentyun.com", wantHost: "ccr.ccs.tencentyun.com", wantRoot: "ccr.ccs.tencentyun.com"},
		{base: "http://localhost:5000", wantHost: "localhost:5000", wantRoot: "localhost:5000"},
	}
	for _, tc := range cases {
		if got := RegistryHost(tc.base); got != tc.wantHost {
			t.Fatalf("RegistryHost(%q): expected %q, got %q", tc.base, tc.wantHost, got)
		}
		if got := TargetRoot(tc.base); got != tc.wantRoot {
			t.Fatalf("TargetRoot(%q): expected %q, got %q", tc.base, tc.wantRoot, got)
		}
	}
}
