package image

import "github.com/gin-gonic/gin"

// Guards are the auth middlewares the routes need.
type Guards struct {
	Optional gin.HandlerFunc // identifies the caller if a token is sent
	Required gin.HandlerFunc
	Internal gin.HandlerFunc // operational endpoints
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, g Guards) {
	images := rg.Group("/images")
	{
		images.POST("", g.Optional, h.Upload)
		images.POST("/move", g.Required, h.Move)
		images.GET("/:id", h.GetByID)
		images.DELETE("/:id", g.Required, h.Delete)
	}

	rg.POST("/albums", g.Required, h.CreateAlbum)

	rg.POST("/resource/:id/open", g.Optional, h.Open)
	rg.GET("/stream/resource/:id", h.Stream)
	rg.GET("/ws/resource/:id", h.StreamWS)
	rg.POST("/cleanup-expired", g.Internal, h.Cleanup)
}
