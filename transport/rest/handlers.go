package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
)

const (
	lobbyPath = "/"
	gamePath  = "/game"
)

type onlinePlayer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinedAt int64  `json:"joinedAt"`
}

type gameView struct {
	Room   string `json:"room"`
	Player string `json:"player"`
	WS     string `json:"ws"`
}

func (that *Server) listRooms(c *gin.Context) {
	rooms, err := that.rooms.List(c.Request.Context())
	if err != nil {
		that.internalError(c, "failed to list rooms", err)
		return
	}

	if rooms == nil {
		rooms = []*entity.Room{}
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (that *Server) getRoom(c *gin.Context) {
	room, err := that.rooms.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, apperror.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": apperror.ErrRoomNotFound.Error()})
		return
	}

	if err != nil {
		that.internalError(c, "failed to get room", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (that *Server) listOnline(c *gin.Context) {
	online, err := that.presence.List(c.Request.Context())
	if err != nil {
		that.internalError(c, "failed to list online players", err)
		return
	}

	players := make([]onlinePlayer, 0, len(online))
	for _, p := range online {
		players = append(players, onlinePlayer{ID: p.ID, Name: p.Name, JoinedAt: p.JoinedAt})
	}

	c.JSON(http.StatusOK, gin.H{"online": players})
}

// openGame describes the game view. Without both room and player the browser goes back to the lobby.
func (that *Server) openGame(c *gin.Context) {
	room, player := c.Query("room"), c.Query("player")
	if room == "" || player == "" {
		that.logger.Warn("game view opened without parameters", "room", room, "player", player)
		c.Redirect(http.StatusFound, lobbyPath)
		return
	}

	c.JSON(http.StatusOK, gameView{Room: room, Player: player, WS: that.wsPath})
}

func (that *Server) internalError(c *gin.Context, msg string, err error) {
	that.logger.Error(msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
