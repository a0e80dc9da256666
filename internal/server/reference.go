package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/resibo-ph/resibo/internal/orgcontext"
	referencedomain "github.com/resibo-ph/resibo/internal/reference/domain"
)

// ListOrganizations returns the issuing organization for the request's
// org scope. Deployments run single-org, so the list carries one entry.
func (s *Server) ListOrganizations(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok || orgID == 0 {
		AbortWithError(c, ErrOrgRequired)
		return
	}

	org, err := s.refrepo.GetOrganization(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	organizations := []referencedomain.Organization{}
	if org != nil {
		organizations = append(organizations, *org)
	}
	c.JSON(http.StatusOK, gin.H{"data": organizations})
}

func (s *Server) ListCategories(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok || orgID == 0 {
		AbortWithError(c, ErrOrgRequired)
		return
	}

	categories, err := s.refrepo.ListCategories(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": categories})
}

func (s *Server) ListTemplates(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok || orgID == 0 {
		AbortWithError(c, ErrOrgRequired)
		return
	}

	templates, err := s.refrepo.ListTemplates(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": templates})
}
