package fixture

import "github.com/sirupsen/logrus"

var log = logrus.WithField("prefix", "fixture")
