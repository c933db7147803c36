package controller

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"streamchat/service"
)

// AuthController validates tokens and resolves the caller's identity onto the
// request context.
type AuthController struct {
	Tokens *service.TokenService
	Users  *service.UserService
}

// TokenValid ...
func (a *AuthController) TokenValid(c *gin.Context) {
	tokenAuth, err := a.Tokens.ExtractTokenMetadata(c.Request)
	if err != nil {
		//Token either expired or not valid
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Please login first"})
		return
	}

	identity, err := a.Users.ResolveIdentity(tokenAuth)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Please login first"})
		return
	}
	c.Set("UserId", identity.UserID)
	c.Set("UserName", identity.Username)
	c.Set("identity", identity)
}

// Refresh ...
func (a *AuthController) Refresh(c *gin.Context) {
	accessToken := a.Tokens.ExtractToken(c.Request)

	//verify the token
	token, err := jwt.Parse(accessToken, func(token *jwt.Token) (interface{}, error) {
		//Make sure that the token method conform to "SigningMethodHMAC"
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.Tokens.Secret, nil
	})
	//if there is an error, the token must have expired
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid authorization, please login again"})
		return
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid authorization, please login again"})
		return
	}

	userID, err := strconv.ParseInt(fmt.Sprintf("%.f", claims["user_id"]), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid authorization, please login again"})
		return
	}
	userName, ok := claims["user_name"].(string)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid authorization, please login again"})
		return
	}

	//Create new pairs of refresh and access tokens
	ts, createErr := a.Tokens.CreateToken(uint(userID), userName)
	if createErr != nil {
		c.JSON(http.StatusForbidden, gin.H{"message": "Invalid authorization, please login again"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": ts.AccessToken})
}
