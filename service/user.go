package service

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"streamchat/model"
	"streamchat/store"
)

type UserService struct {
	Users  *store.UserStore
	Tokens *TokenService
	Logger Logger
}

// Logger is the subset of logrus the services call; it keeps constructors
// honest in tests.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
	Gender   string `json:"gender"`
}

func (service *UserService) Register(user *User) error {
	// 唯一性检查
	if service.Users.Exists(user.Username, user.Email) {
		return errors.New("user already exists")
	}

	// 密码加密
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.New("internal server error")
	}

	newUser := &model.User{
		Username: user.Username,
		Email:    user.Email,
		Password: string(hashedPassword),
		Nickname: user.Nickname,
		Gender:   user.Gender,
	}
	if err := service.Users.Create(newUser); err != nil {
		return errors.New("internal server error")
	}
	return nil
}

func (service *UserService) Login(user *User) (string, error) {
	registeredUser, err := service.Users.GetByUsername(user.Username)
	if err != nil {
		return "", errors.New("failed to get user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(registeredUser.Password), []byte(user.Password)); err != nil {
		return "", errors.New("invalid credentials")
	}

	token, err := service.Tokens.CreateToken(registeredUser.ID, registeredUser.Username)
	if err != nil {
		service.Logger.Errorf("Error generating token: %v", err)
		return "", errors.New("failed to generate token")
	}

	return token.AccessToken, nil
}

// ResolveIdentity loads the persona fields for a validated caller.
func (service *UserService) ResolveIdentity(details *AccessDetails) (model.Identity, error) {
	user, err := service.Users.GetByID(uint(details.UserID))
	if err != nil {
		return model.Identity{}, err
	}
	persona := user.Nickname
	if persona == "" {
		persona = user.Username
	}
	return model.Identity{
		UserID:        user.ID,
		Username:      user.Username,
		PersonaName:   persona,
		PersonaGender: user.Gender,
	}, nil
}
