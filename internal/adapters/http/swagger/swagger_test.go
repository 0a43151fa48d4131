package swagger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/smartystreets/goconvey/convey"
)

func TestSwaggerHandler(t *testing.T) {
	convey.Convey("Given a mux with the docs routes", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux)

		serve := func(method, target string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(method, target, http.NoBody))
			return w
		}

		convey.Convey("Then /openapi.yaml serves the document", func() {
			w := serve(http.MethodGet, "/openapi.yaml")
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "application/yaml; charset=utf-8")
			convey.So(w.Body.Bytes(), convey.ShouldResemble, OpenAPI)
		})

		convey.Convey("Then /api-docs serves the ReDoc page", func() {
			w := serve(http.MethodGet, "/api-docs")
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "text/html; charset=utf-8")
			convey.So(w.Body.String(), convey.ShouldContainSubstring, "redoc-container")
			convey.So(w.Body.String(), convey.ShouldContainSubstring, redocScript)
		})

		convey.Convey("Then other methods are not found", func() {
			convey.So(serve(http.MethodPost, "/openapi.yaml").Code, convey.ShouldEqual, http.StatusNotFound)
			convey.So(serve(http.MethodDelete, "/api-docs").Code, convey.ShouldEqual, http.StatusNotFound)
		})
	})

	convey.Convey("Given a nil mux", t, func() {
		convey.So(func() { Register(context.Background(), nil) }, convey.ShouldPanic)
	})
}

func TestOpenAPIDocument(t *testing.T) {
	convey.Convey("Given the embedded document", t, func() {
		doc, err := yaml.Parser().Unmarshal(OpenAPI)
		convey.So(err, convey.ShouldBeNil)
		convey.So(doc["openapi"], convey.ShouldEqual, "3.0.3")

		paths, ok := doc["paths"].(map[string]any)
		convey.So(ok, convey.ShouldBeTrue)

		convey.Convey("Then every API route is documented", func() {
			for _, route := range []string{
				"/healthz", "/stats", "/playback", "/sessions/close", "/feed",
				"/feed/view", "/feed/view/more", "/feedback", "/recipes/suggest", "/videos/embedding",
			} {
				convey.So(paths, convey.ShouldContainKey, route)
			}
			convey.So(len(paths), convey.ShouldEqual, 10)
		})
	})
}
